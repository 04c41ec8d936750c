package nativedeps

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// GitSource pins a dependency's upstream repository.
type GitSource struct {
	URL string `mapstructure:"url" json:"url"`
	Tag string `mapstructure:"tag" json:"tag"`
}

// Dependency is one per-library configuration record.
type Dependency struct {
	Build   bool      `mapstructure:"build" json:"build"`
	Dirname string    `mapstructure:"dirname" json:"dirname"`
	Debug   *bool     `mapstructure:"debug" json:"debug,omitempty"`
	Test    *bool     `mapstructure:"test" json:"test,omitempty"`
	Git     GitSource `mapstructure:"git" json:"git"`
}

// Toolchain names the external tools and generator settings used by the step table.
type Toolchain struct {
	Generator     string `mapstructure:"generator" json:"generator"`
	Arch          string `mapstructure:"arch" json:"arch"`
	Platform      string `mapstructure:"platform" json:"platform"`
	OpenSSLTarget string `mapstructure:"openssl_target" json:"openssl_target"`
	Git           string `mapstructure:"git" json:"git"`
	CMake         string `mapstructure:"cmake" json:"cmake"`
	CTest         string `mapstructure:"ctest" json:"ctest"`
	MSBuild       string `mapstructure:"msbuild" json:"msbuild"`
	NMake         string `mapstructure:"nmake" json:"nmake"`
	Perl          string `mapstructure:"perl" json:"perl"`
}

// PublishConfig describes the S3-compatible bucket packages are uploaded to.
type PublishConfig struct {
	Endpoint        string `mapstructure:"endpoint" json:"endpoint"`
	Region          string `mapstructure:"region" json:"region"`
	Bucket          string `mapstructure:"bucket" json:"bucket"`
	Prefix          string `mapstructure:"prefix" json:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" json:"secret_access_key"`
}

// Config is the resolved run configuration. It is treated as an immutable
// value: derive variants with WithDebug instead of mutating fields.
type Config struct {
	Path      string
	Debug     bool
	SkipTests bool
	Toolchain Toolchain
	Vars      map[string]string
	Publish   PublishConfig
	deps      map[string]Dependency
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// ConfigPath is an explicit file; when set it must exist.
	ConfigPath string
	// WorkDir is searched for config.json then config.default.json.
	WorkDir string
}

// DefaultToolchain returns the toolchain used when the configuration omits one.
func DefaultToolchain() Toolchain {
	return Toolchain{
		Generator:     "Visual Studio 17 2022",
		Arch:          "x64",
		Platform:      "x64",
		OpenSSLTarget: "VC-WIN64A",
		Git:           "git",
		CMake:         "cmake",
		CTest:         "ctest",
		MSBuild:       "msbuild",
		NMake:         "nmake",
		Perl:          "perl",
	}
}

// resolveConfigPath picks the override file, else the default file.
func resolveConfigPath(opts LoadOptions) (string, error) {
	if opts.ConfigPath != "" {
		if !fileExists(opts.ConfigPath) {
			return "", fmt.Errorf("config file not found: %s", opts.ConfigPath)
		}
		return opts.ConfigPath, nil
	}
	for _, name := range []string{ConfigFile, DefaultConfigFile} {
		p := filepath.Join(opts.WorkDir, name)
		if fileExists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("no configuration found: neither %s nor %s exists in %s",
		ConfigFile, DefaultConfigFile, opts.WorkDir)
}

// LoadConfig reads the JSON configuration and applies NATIVEDEPS_* env overrides.
func LoadConfig(opts LoadOptions) (*Config, error) {
	path, err := resolveConfigPath(opts)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	tc := DefaultToolchain()
	v.SetDefault("debug", false)
	v.SetDefault("toolchain.generator", tc.Generator)
	v.SetDefault("toolchain.arch", tc.Arch)
	v.SetDefault("toolchain.platform", tc.Platform)
	v.SetDefault("toolchain.openssl_target", tc.OpenSSLTarget)
	v.SetDefault("toolchain.git", tc.Git)
	v.SetDefault("toolchain.cmake", tc.CMake)
	v.SetDefault("toolchain.ctest", tc.CTest)
	v.SetDefault("toolchain.msbuild", tc.MSBuild)
	v.SetDefault("toolchain.nmake", tc.NMake)
	v.SetDefault("toolchain.perl", tc.Perl)
	v.SetDefault("publish.region", "auto")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg := &Config{
		Path:  path,
		Debug: v.GetBool("debug"),
		Vars:  make(map[string]string),
		deps:  make(map[string]Dependency),
	}
	// Nested sections are read key by key so partial sections keep their defaults.
	cfg.Toolchain = Toolchain{
		Generator:     v.GetString("toolchain.generator"),
		Arch:          v.GetString("toolchain.arch"),
		Platform:      v.GetString("toolchain.platform"),
		OpenSSLTarget: v.GetString("toolchain.openssl_target"),
		Git:           v.GetString("toolchain.git"),
		CMake:         v.GetString("toolchain.cmake"),
		CTest:         v.GetString("toolchain.ctest"),
		MSBuild:       v.GetString("toolchain.msbuild"),
		NMake:         v.GetString("toolchain.nmake"),
		Perl:          v.GetString("toolchain.perl"),
	}
	cfg.Publish = PublishConfig{
		Endpoint:        v.GetString("publish.endpoint"),
		Region:          v.GetString("publish.region"),
		Bucket:          v.GetString("publish.bucket"),
		Prefix:          v.GetString("publish.prefix"),
		AccessKeyID:     v.GetString("publish.access_key_id"),
		SecretAccessKey: v.GetString("publish.secret_access_key"),
	}
	// viper lowercases map keys; template variables are upper case.
	for k, val := range v.GetStringMapString("vars") {
		cfg.Vars[strings.ToUpper(k)] = val
	}

	for _, step := range Steps() {
		if !v.IsSet(step.Name) {
			continue
		}
		var dep Dependency
		if err := v.UnmarshalKey(step.Name, &dep); err != nil {
			return nil, fmt.Errorf("invalid entry %q in %s: %w", step.Name, path, err)
		}
		cfg.deps[step.Name] = dep
	}
	return cfg, nil
}

// WithDebug returns a copy of the configuration with a different process-wide debug default.
func (c *Config) WithDebug(debug bool) *Config {
	cp := *c
	cp.Debug = debug
	cp.Vars = maps.Clone(c.Vars)
	cp.deps = maps.Clone(c.deps)
	return &cp
}

// WithSkipTests returns a copy of the configuration that never runs test suites.
func (c *Config) WithSkipTests(skip bool) *Config {
	cp := c.WithDebug(c.Debug)
	cp.SkipTests = skip
	return cp
}

// Dependency returns the record for name. A missing record is an error.
func (c *Config) Dependency(name string) (Dependency, error) {
	dep, ok := c.deps[name]
	if !ok {
		return Dependency{}, fmt.Errorf("%w: %q has no entry in %s", errDependencyNotConfigured, name, c.Path)
	}
	return dep, nil
}

// DebugFor resolves the debug flag for one dependency: its own override wins.
func (c *Config) DebugFor(name string) bool {
	if dep, ok := c.deps[name]; ok && dep.Debug != nil {
		return *dep.Debug
	}
	return c.Debug
}

// TestFor reports whether the dependency's test suite should run.
func (c *Config) TestFor(name string) bool {
	if c.SkipTests {
		return false
	}
	dep, ok := c.deps[name]
	return ok && dep.Test != nil && *dep.Test
}

// validate checks the fields an enabled dependency needs before any work starts.
func (d Dependency) validate(name string) error {
	switch {
	case d.Dirname == "":
		return fmt.Errorf("dependency %q: dirname is empty", name)
	case d.Git.URL == "":
		return fmt.Errorf("dependency %q: git.url is empty", name)
	case d.Git.Tag == "":
		return fmt.Errorf("dependency %q: git.tag is empty", name)
	}
	return nil
}

// Document renders the resolved configuration in the file's JSON shape.
// The publish secret is masked.
func (c *Config) Document() map[string]any {
	doc := map[string]any{
		"debug":     c.Debug,
		"toolchain": c.Toolchain,
		"vars":      c.Vars,
	}
	pub := c.Publish
	if pub.SecretAccessKey != "" {
		pub.SecretAccessKey = "********"
	}
	doc["publish"] = pub
	for name, dep := range c.deps {
		doc[name] = dep
	}
	return doc
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
