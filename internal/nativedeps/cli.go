package nativedeps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

// cli holds the persistent flags shared by every subcommand.
type cli struct {
	out     io.Writer
	cfgFile string
	workDir string
	verbose bool
	quiet   bool
}

func (c *cli) console() *Console {
	return NewConsole(c.out, c.verbose)
}

// layout resolves the work directory: --workdir, then NATIVEDEPS_WORKDIR,
// then the current directory.
func (c *cli) layout() (Layout, error) {
	dir := c.workDir
	if dir == "" {
		dir = os.Getenv(envPrefix + "_WORKDIR")
	}
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to resolve work directory %s: %w", dir, err)
	}
	return Layout{Root: abs}, nil
}

func (c *cli) load() (*Config, Layout, error) {
	layout, err := c.layout()
	if err != nil {
		return nil, Layout{}, err
	}
	cfg, err := LoadConfig(LoadOptions{ConfigPath: c.cfgFile, WorkDir: layout.Root})
	if err != nil {
		return nil, Layout{}, err
	}
	c.console().debugf("Using configuration %s\n", cfg.Path)
	return cfg, layout, nil
}

func (c *cli) executor(dryRun bool) *Executor {
	return &Executor{Stdout: c.out, Stderr: c.out, DryRun: dryRun}
}

// NewRootCommand builds the command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	c := &cli{out: out}
	root := &cobra.Command{
		Use:   "nativedeps",
		Short: "Build pinned native dependencies in release and debug configurations",
		Long: `nativedeps clones each configured library at its pinned tag, builds it with
its own build system (CMake, MSBuild, NMake, Perl Configure), optionally runs
its tests, and installs it under out/release/<dirname> and out/debug/<dirname>.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       versionString(),
	}
	root.SetOut(out)
	root.SetErr(out)

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "configuration file (default: config.json, then config.default.json in the work directory)")
	pf.StringVarP(&c.workDir, "workdir", "C", "", "work directory holding src/, build/, dist/ and out/")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "enable debug output")
	pf.BoolVarP(&c.quiet, "quiet", "q", false, "keep build tool output in the step logs only")

	root.AddCommand(
		c.runCommand(),
		c.checkoutCommand(),
		c.listCommand(),
		c.digestCommand(),
		c.packageCommand(),
		c.publishCommand(),
		c.logsCommand(),
		c.configCommand(),
		c.versionCommand(),
	)
	return root
}

func (c *cli) runCommand() *cobra.Command {
	var (
		pass      string
		dryRun    bool
		skipTests bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build every enabled dependency, release pass then debug pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, layout, err := c.load()
			if err != nil {
				return err
			}
			passes, err := Passes(cfg.WithSkipTests(skipTests), pass)
			if err != nil {
				return err
			}
			b := &Builder{
				Layout:  layout,
				Runner:  c.executor(dryRun),
				Console: c.console(),
				DryRun:  dryRun,
				Quiet:   c.quiet,
			}
			d := NewDriver(b)
			d.Progress = c.quiet
			return d.Run(cmd.Context(), passes)
		},
	}
	cmd.Flags().StringVar(&pass, "pass", "all", "passes to run: all, release or debug")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "print commands without running them")
	cmd.Flags().BoolVar(&skipTests, "skip-tests", false, "never run test suites")
	return cmd
}

// selectSteps returns the steps named in args, or every enabled step.
func selectSteps(cfg *Config, args []string) ([]Step, error) {
	if len(args) == 0 {
		var steps []Step
		for _, s := range Steps() {
			if dep, err := cfg.Dependency(s.Name); err == nil && dep.Build {
				steps = append(steps, s)
			}
		}
		return steps, nil
	}
	steps := make([]Step, 0, len(args))
	for _, name := range args {
		s, err := LookupStep(name)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}

func (c *cli) checkoutCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "checkout [name...]",
		Short: "Clone or reset source trees to their pinned tags without building",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, layout, err := c.load()
			if err != nil {
				return err
			}
			steps, err := selectSteps(cfg, args)
			if err != nil {
				return err
			}
			if !dryRun {
				lock, err := AcquireRunLock(layout.LockPath())
				if err != nil {
					return err
				}
				defer lock.Release()
			}
			console := c.console()
			gc := GitCheckout{Runner: c.executor(dryRun), Git: cfg.Toolchain.Git, DryRun: dryRun}
			for _, s := range steps {
				dep, err := cfg.Dependency(s.Name)
				if err != nil {
					return err
				}
				if err := dep.validate(s.Name); err != nil {
					return err
				}
				console.Arrowf(colSuccess, "Checking out %s %s", s.Name, dep.Git.Tag)
				if err := gc.Checkout(cmd.Context(), layout.Src(dep.Dirname), dep.Git.URL, dep.Git.Tag); err != nil {
					return &StepError{Step: s.Name, Variant: VariantFor(cfg.Debug), Phase: PhaseCheckout, Err: err}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "print git commands without running them")
	return cmd
}

func (c *cli) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the step table with each dependency's configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := c.load()
			if err != nil {
				return err
			}
			return writeStepTable(c.out, cfg)
		},
	}
}

func writeStepTable(out io.Writer, cfg *Config) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tBUILD\tDIRNAME\tTAG\tDEBUG\tTEST\tREQUIRES")
	for _, s := range Steps() {
		dep, err := cfg.Dependency(s.Name)
		if err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t%s\n", s.Name, strings.Join(s.Requires, ","))
			continue
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%t\t%t\t%s\n",
			s.Name, dep.Build, dep.Dirname, dep.Git.Tag,
			cfg.DebugFor(s.Name), cfg.TestFor(s.Name), strings.Join(s.Requires, ","))
	}
	return tw.Flush()
}

func (c *cli) digestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "digest [name...]",
		Short: "Print a BLAKE3 digest of each checked-out source tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, layout, err := c.load()
			if err != nil {
				return err
			}
			steps, err := selectSteps(cfg, args)
			if err != nil {
				return err
			}
			for _, s := range steps {
				dep, err := cfg.Dependency(s.Name)
				if err != nil {
					return err
				}
				src := layout.Src(dep.Dirname)
				if _, err := os.Stat(src); err != nil {
					c.console().Arrowf(colWarn, "%s: not checked out", s.Name)
					continue
				}
				sum, err := TreeDigest(src)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "%s  %s\n", sum, s.Name)
			}
			return nil
		},
	}
}

func (c *cli) packageCommand() *cobra.Command {
	var (
		format string
		pass   string
	)
	cmd := &cobra.Command{
		Use:   "package",
		Short: "Archive out/release and out/debug into packages/",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			layout, err := c.layout()
			if err != nil {
				return err
			}
			f, err := ParseArchiveFormat(format)
			if err != nil {
				return err
			}
			variants := []Variant{Release, Debug}
			switch pass {
			case "", "all":
			case string(Release), string(Debug):
				variants = []Variant{Variant(pass)}
			default:
				return fmt.Errorf("unknown pass %q (want all, release or debug)", pass)
			}
			console := c.console()
			for _, v := range variants {
				dest, err := PackageVariant(layout, v, f, console)
				if err != nil {
					return err
				}
				if c.verbose {
					names, err := ListArchive(dest)
					if err != nil {
						return err
					}
					console.debugf("%s: %d entries\n", filepath.Base(dest), len(names))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(FormatZstd), "archive format: zst, gz, xz or zip")
	cmd.Flags().StringVar(&pass, "pass", "all", "variants to package: all, release or debug")
	return cmd
}

func (c *cli) publishCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Upload packages and their digests to the configured S3 bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, layout, err := c.load()
			if err != nil {
				return err
			}
			p, err := NewPublisher(cmd.Context(), cfg.Publish, c.verbose)
			if err != nil {
				return err
			}
			n, err := p.PublishPackages(cmd.Context(), layout.PackagesDir(), c.console())
			if err != nil {
				return err
			}
			c.console().Arrowf(colSuccess, "Uploaded %d files", n)
			return nil
		},
	}
}

func (c *cli) logsCommand() *cobra.Command {
	var variant string
	cmd := &cobra.Command{
		Use:   "logs <name>",
		Short: "Show the build log of one dependency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := c.layout()
			if err != nil {
				return err
			}
			v := Variant(variant)
			if v != Release && v != Debug {
				return fmt.Errorf("unknown variant %q (want release or debug)", variant)
			}
			return ShowStepLog(c.out, layout, v, args[0])
		},
	}
	cmd.Flags().StringVar(&variant, "variant", string(Release), "pass whose log to show: release or debug")
	return cmd
}

func (c *cli) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the built-in default configuration to config.default.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			layout, err := c.layout()
			if err != nil {
				return err
			}
			dest, err := WriteDefaultConfig(layout.Root, force)
			if err != nil {
				return err
			}
			c.console().Arrowf(colSuccess, "Wrote %s", dest)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	var builtin bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if builtin {
				_, err := c.out.Write(DefaultConfig())
				return err
			}
			cfg, _, err := c.load()
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(cfg.Document(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "# %s\n%s\n", cfg.Path, data)
			return nil
		},
	}

	showCmd.Flags().BoolVar(&builtin, "default", false, "print the built-in default configuration instead")

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func (c *cli) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(c.out, "nativedeps %s\n", versionString())
		},
	}
}

func versionString() string {
	if version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (built: %s)", version, buildDate)
}

// Main is the CLI entrypoint for the nativedeps binary.
func Main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	// First interrupt cancels the context, which kills the running tool's
	// process group; a second one exits immediately.
	go func() {
		select {
		case sig := <-sigs:
			colArrow.Print("\n-> ")
			color.Danger.Printf("Received %v. Cancelling build\n", sig)
			cancel()
			<-sigs
			colArrow.Print("\n-> ")
			color.Danger.Println("Second interrupt received. Forcing immediate exit.")
			os.Exit(130)
		case <-ctx.Done():
		}
	}()

	root := NewRootCommand(os.Stdout)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return
	}
	colArrow.Print("-> ")
	colError.Printf("Error: %v\n", err)
	if errors.Is(err, context.Canceled) {
		os.Exit(130)
	}
	os.Exit(1)
}
