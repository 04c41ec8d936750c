package nativedeps

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a config.json into dir with every step configured
// and only the named ones enabled, then loads it.
func writeTestConfig(t *testing.T, dir string, mutate func(doc map[string]any), enabled ...string) *Config {
	t.Helper()
	doc := map[string]any{
		"debug": false,
		"vars":  map[string]string{"ICONV_ROOT": "/opt/iconv"},
	}
	for _, name := range StepNames() {
		doc[name] = map[string]any{
			"build":   slices.Contains(enabled, name),
			"dirname": name + "-src",
			"git": map[string]string{
				"url": "https://example.com/" + name + ".git",
				"tag": "v1.0.0",
			},
		}
	}
	if mutate != nil {
		mutate(doc)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), data, 0o644))

	cfg, err := LoadConfig(LoadOptions{WorkDir: dir})
	require.NoError(t, err)
	return cfg
}

// depDoc returns the mutable record of one dependency inside a config document.
func depDoc(doc map[string]any, name string) map[string]any {
	return doc[name].(map[string]any)
}

// fakeRunner records invocations instead of spawning processes. onRun lets a
// test simulate the side effects of a tool.
type fakeRunner struct {
	mu    sync.Mutex
	calls []Invocation
	onRun func(inv Invocation) error
}

func (f *fakeRunner) Run(_ context.Context, inv Invocation) error {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()
	if f.onRun != nil {
		return f.onRun(inv)
	}
	return nil
}

// commands renders recorded invocations for assertions.
func (f *fakeRunner) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.String())
	}
	return out
}

// countMatching counts recorded commands containing substr.
func (f *fakeRunner) countMatching(substr string) int {
	n := 0
	for _, c := range f.commands() {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

// simulateTools creates the directories and files that git clone and cmake
// --install would produce for the zlib step.
func simulateTools(layout Layout) func(Invocation) error {
	return func(inv Invocation) error {
		args := inv.Args
		switch {
		case len(args) >= 4 && args[1] == "clone":
			return os.MkdirAll(filepath.Join(args[3], ".git"), 0o755)
		case slices.Contains(args, "--install"):
			cfgName := args[slices.Index(args, "--config")+1]
			dist := layout.Dist("zlib-src")
			lib := "zlib.lib"
			if cfgName == "Debug" {
				lib = "zlibd.lib"
			}
			if err := os.MkdirAll(filepath.Join(dist, "lib"), 0o755); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Join(dist, "include"), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(dist, "include", "zlib.h"), []byte("/* zlib */\n"), 0o644); err != nil {
				return err
			}
			return os.WriteFile(filepath.Join(dist, "lib", lib), []byte(cfgName), 0o644)
		}
		return nil
	}
}

func newTestBuilder(root string, runner CommandRunner) *Builder {
	return &Builder{
		Layout:  Layout{Root: root},
		Runner:  runner,
		Console: NewConsole(io.Discard, true),
		Quiet:   true,
	}
}

// dirNames lists the entries of dir, or nil when it does not exist.
func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
