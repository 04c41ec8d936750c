package nativedeps

import (
	"context"
	"fmt"
	"time"
)

// Pass is one full run of the step table under a derived configuration.
type Pass struct {
	Variant Variant
	Config  *Config
}

// Passes derives the release and debug configurations up front. which is
// "all", "release" or "debug".
func Passes(cfg *Config, which string) ([]Pass, error) {
	release := Pass{Variant: Release, Config: cfg.WithDebug(false)}
	debug := Pass{Variant: Debug, Config: cfg.WithDebug(true)}
	switch which {
	case "", "all":
		return []Pass{release, debug}, nil
	case string(Release):
		return []Pass{release}, nil
	case string(Debug):
		return []Pass{debug}, nil
	}
	return nil, fmt.Errorf("unknown pass %q (want all, release or debug)", which)
}

// Driver runs the step table sequentially, once per pass, relocating the
// shared distribution tree to out/<variant> after each pass.
type Driver struct {
	Builder *Builder
	Steps   []Step
	// Progress shows a step counter (only drawn on a terminal).
	Progress bool
}

// NewDriver returns a driver over the full step table.
func NewDriver(b *Builder) *Driver {
	return &Driver{Builder: b, Steps: Steps()}
}

// Run executes passes in order and stops at the first failure.
func (d *Driver) Run(ctx context.Context, passes []Pass) error {
	layout := d.Builder.Layout
	console := d.Builder.Console

	if d.Builder.DryRun {
		console.Arrowf(colInfo, "Dry run: commands are printed, nothing is executed")
	} else {
		lock, err := AcquireRunLock(layout.LockPath())
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	for _, pass := range passes {
		start := time.Now()
		console.Arrowf(colSuccess, "Starting %s pass", pass.Variant)
		if !d.Builder.DryRun {
			if err := ResetDir(layout.DistRoot()); err != nil {
				return err
			}
			if err := ResetDir(layout.LogDir(pass.Variant)); err != nil {
				return err
			}
		}

		bar := newProgress(d.Progress, len(d.Steps), string(pass.Variant))
		for _, step := range d.Steps {
			bar.Describe(fmt.Sprintf("%s: %s", pass.Variant, step.Name))
			if err := d.Builder.RunStep(ctx, pass.Config, step); err != nil {
				_ = bar.Finish()
				return err
			}
			_ = bar.Add(1)
		}
		_ = bar.Finish()

		out := layout.Out(pass.Variant)
		if !d.Builder.DryRun {
			if empty, err := isEmptyDir(layout.DistRoot()); err == nil && empty {
				console.Arrowf(colWarn, "No dependency is enabled; %s will be empty", out)
			}
			if err := relocateDir(layout.DistRoot(), out); err != nil {
				return fmt.Errorf("%s pass: %w", pass.Variant, err)
			}
		}
		console.Arrowf(colSuccess, "%s pass finished in %s", pass.Variant, time.Since(start).Round(time.Second))
		console.Arrowf(colNote, "%s", out)
	}
	return nil
}
