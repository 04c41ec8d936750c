package nativedeps

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// StepError reports which step, phase and command stopped a run.
type StepError struct {
	Step    string
	Variant Variant
	Phase   Phase
	Command string
	Err     error
}

func (e *StepError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("%s (%s) %s: %v", e.Step, e.Variant, e.Phase, e.Err)
	}
	return fmt.Sprintf("%s (%s) %s: %s: %v", e.Step, e.Variant, e.Phase, e.Command, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Builder executes step descriptors.
type Builder struct {
	Layout  Layout
	Runner  CommandRunner
	Console *Console
	// DryRun prints what would run without touching the filesystem.
	DryRun bool
	// Quiet keeps command output off the console; it still reaches the step log.
	Quiet bool
}

// stepRun carries the resolved state of one step execution.
type stepRun struct {
	b       *Builder
	step    Step
	dep     Dependency
	variant Variant
	test    bool
	vars    Vars
	env     []string
	out     io.Writer
}

// RunStep drives one dependency through checkout, patch, configure, build,
// test, install and post-install. A dependency whose build flag is false is
// skipped without touching the filesystem or spawning anything.
func (b *Builder) RunStep(ctx context.Context, cfg *Config, step Step) error {
	dep, err := cfg.Dependency(step.Name)
	if err != nil {
		return &StepError{Step: step.Name, Variant: VariantFor(cfg.Debug), Phase: PhaseCheckout, Err: err}
	}
	if !dep.Build {
		b.Console.debugf("Skipping %s: build disabled\n", step.Name)
		return nil
	}

	r := &stepRun{
		b:       b,
		step:    step,
		dep:     dep,
		variant: VariantFor(cfg.DebugFor(step.Name)),
		test:    cfg.TestFor(step.Name) && len(step.Test) > 0,
		out:     b.Console.Out,
	}
	if err := dep.validate(step.Name); err != nil {
		return r.fail(PhaseCheckout, "", err)
	}
	if r.vars, err = b.stepVars(cfg, step, dep, r.variant); err != nil {
		return r.fail(PhaseCheckout, "", err)
	}
	r.env = b.stepEnv(cfg, step)

	b.Console.Arrowf(colSuccess, "Building %s %s (%s)", step.Name, dep.Git.Tag, r.variant.BuildConfig())

	if !b.DryRun {
		var console io.Writer
		if !b.Quiet {
			console = b.Console.Out
		}
		log, err := openStepLog(b.Layout.LogFile(VariantFor(cfg.Debug), step.Name), console)
		if err != nil {
			return r.fail(PhaseCheckout, "", err)
		}
		defer func() {
			if cerr := log.Close(); cerr != nil {
				b.Console.Arrowf(colWarn, "%v", cerr)
			}
		}()
		r.out = log
	}

	return r.run(ctx, cfg)
}

func (r *stepRun) run(ctx context.Context, cfg *Config) error {
	b := r.b
	srcDir := b.Layout.Src(r.dep.Dirname)
	buildDir := b.Layout.Build(r.dep.Dirname)
	distDir := b.Layout.Dist(r.dep.Dirname)

	r.phase(PhaseCheckout)
	checkout := GitCheckout{Runner: r, Git: cfg.Toolchain.Git, DryRun: b.DryRun}
	if err := checkout.Checkout(ctx, srcDir, r.dep.Git.URL, r.dep.Git.Tag); err != nil {
		return r.fail(PhaseCheckout, "", err)
	}

	if len(r.step.Patches) > 0 {
		r.phase(PhasePatch)
		for _, p := range r.step.Patches {
			fmt.Fprintf(r.out, "patch %s: %s\n", p.File, p.Pattern)
			if b.DryRun {
				continue
			}
			if err := applyPatch(srcDir, p); err != nil {
				return r.fail(PhasePatch, p.File, err)
			}
		}
	}

	if err := r.checkRequires(cfg); err != nil {
		return r.fail(PhaseConfigure, "", err)
	}
	if err := r.reset(PhaseConfigure, buildDir); err != nil {
		return err
	}
	if err := r.actions(ctx, PhaseConfigure, r.step.Configure); err != nil {
		return err
	}
	if err := r.actions(ctx, PhaseBuild, r.step.Build); err != nil {
		return err
	}
	if r.test && !r.step.TestAfterInstall {
		if err := r.actions(ctx, PhaseTest, r.step.Test); err != nil {
			return err
		}
	}
	if err := r.reset(PhaseInstall, distDir); err != nil {
		return err
	}
	if err := r.actions(ctx, PhaseInstall, r.step.Install); err != nil {
		return err
	}
	if r.test && r.step.TestAfterInstall {
		if err := r.actions(ctx, PhaseTest, r.step.Test); err != nil {
			return err
		}
	}
	return r.actions(ctx, PhasePostInstall, r.step.PostInstall)
}

// Run implements CommandRunner so checkout commands land in the step log.
func (r *stepRun) Run(ctx context.Context, inv Invocation) error {
	inv.Step = r.step.Name
	inv.Output = r.out
	return r.b.Runner.Run(ctx, inv)
}

func (r *stepRun) phase(p Phase) {
	fmt.Fprintf(r.out, "==> %s %s\n", r.step.Name, p)
}

func (r *stepRun) fail(p Phase, command string, err error) error {
	return &StepError{Step: r.step.Name, Variant: r.variant, Phase: p, Command: command, Err: err}
}

// reset empties dir right before the phase that fills it.
func (r *stepRun) reset(p Phase, dir string) error {
	if r.b.DryRun {
		return nil
	}
	if err := ResetDir(dir); err != nil {
		return r.fail(p, "", err)
	}
	return nil
}

// checkRequires fails early when a sibling install prefix is missing.
func (r *stepRun) checkRequires(cfg *Config) error {
	for _, name := range r.step.Requires {
		dep, err := cfg.Dependency(name)
		if err != nil {
			return err
		}
		if !dep.Build {
			return fmt.Errorf("requires %s, which is disabled in %s", name, cfg.Path)
		}
		if r.b.DryRun {
			continue
		}
		dist := r.b.Layout.Dist(dep.Dirname)
		if info, err := os.Stat(dist); err != nil || !info.IsDir() {
			return fmt.Errorf("requires %s but %s was not installed", name, dist)
		}
	}
	return nil
}

func (r *stepRun) actions(ctx context.Context, p Phase, actions []Action) error {
	if len(actions) == 0 {
		return nil
	}
	r.phase(p)
	for _, a := range actions {
		if !a.appliesTo(r.variant) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return r.fail(p, "", err)
		}
		if err := r.action(ctx, p, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *stepRun) action(ctx context.Context, p Phase, a Action) error {
	if a.Kind == ActionExec {
		args, err := r.vars.Fields(a.Line)
		if err != nil {
			return r.fail(p, a.Line, err)
		}
		dirTmpl := a.Dir
		if dirTmpl == "" {
			dirTmpl = "$BUILD"
		}
		dir, err := r.vars.Expand(dirTmpl)
		if err != nil {
			return r.fail(p, a.Line, err)
		}
		inv := Invocation{Phase: p, Dir: dir, Args: args, Env: r.env}
		if err := r.Run(ctx, inv); err != nil {
			return r.fail(p, inv.String(), err)
		}
		return nil
	}

	from, err := r.vars.Expand(a.From)
	if err != nil {
		return r.fail(p, a.Kind.String(), err)
	}
	to, err := r.vars.Expand(a.To)
	if err != nil {
		return r.fail(p, a.Kind.String(), err)
	}
	desc := fmt.Sprintf("%s %s -> %s", a.Kind, from, to)
	fmt.Fprintln(r.out, desc)
	if r.b.DryRun {
		return nil
	}

	switch a.Kind {
	case ActionCopy:
		err = copyFile(from, to)
	case ActionCopyTree:
		err = copyDir(from, to)
	case ActionRename:
		if err = os.MkdirAll(filepath.Dir(to), 0o755); err == nil {
			err = os.Rename(from, to)
		}
	default:
		err = fmt.Errorf("unsupported action kind %d", a.Kind)
	}
	if err != nil {
		return r.fail(p, desc, err)
	}
	return nil
}

// stepVars builds the template environment of one step.
func (b *Builder) stepVars(cfg *Config, step Step, dep Dependency, variant Variant) (Vars, error) {
	src := b.Layout.Src(dep.Dirname)
	source := src
	if step.SourceDir != "" {
		source = filepath.Join(src, filepath.FromSlash(step.SourceDir))
	}
	tests := "OFF"
	if cfg.TestFor(step.Name) {
		tests = "ON"
	}
	suffix := ""
	if variant == Debug {
		suffix = "d"
	}
	tc := cfg.Toolchain

	vars := Vars{
		"SRC":            src,
		"SOURCE":         source,
		"BUILD":          b.Layout.Build(dep.Dirname),
		"DIST":           b.Layout.Dist(dep.Dirname),
		"CONFIG":         variant.BuildConfig(),
		"DEBUG_SUFFIX":   suffix,
		"TESTS":          tests,
		"JOBS":           strconv.Itoa(runtime.NumCPU()),
		"GENERATOR":      tc.Generator,
		"ARCH":           tc.Arch,
		"PLATFORM":       tc.Platform,
		"OPENSSL_TARGET": tc.OpenSSLTarget,
		"CMAKE":          tc.CMake,
		"CTEST":          tc.CTest,
		"MSBUILD":        tc.MSBuild,
		"NMAKE":          tc.NMake,
		"PERL":           tc.Perl,
	}
	for _, name := range StepNames() {
		if other, ok := cfg.deps[name]; ok && other.Dirname != "" {
			vars[distVarName(name)] = b.Layout.Dist(other.Dirname)
		}
	}
	for k, c := range step.Vars {
		vars[k] = c.Pick(variant)
	}
	for k := range cfg.Vars {
		if _, builtin := vars[k]; builtin {
			return nil, fmt.Errorf("config var %s shadows a built-in variable", k)
		}
	}
	return vars.With(cfg.Vars), nil
}

// stepEnv puts the bin directories of required dependencies first on PATH so
// that tests and tools find sibling DLLs.
func (b *Builder) stepEnv(cfg *Config, step Step) []string {
	var bins []string
	for _, name := range step.Requires {
		if dep, ok := cfg.deps[name]; ok && dep.Dirname != "" {
			bins = append(bins, filepath.Join(b.Layout.Dist(dep.Dirname), "bin"))
		}
	}
	if len(bins) == 0 {
		return nil
	}
	bins = append(bins, os.Getenv("PATH"))
	return []string{"PATH=" + strings.Join(bins, string(os.PathListSeparator))}
}
