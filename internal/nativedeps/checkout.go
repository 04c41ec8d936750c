package nativedeps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// GitCheckout materializes pinned source revisions with the git client.
type GitCheckout struct {
	Runner CommandRunner
	Git    string
	// DryRun skips touching the filesystem; the runner decides whether
	// commands actually execute.
	DryRun bool
}

// Checkout ensures dest is a clone of url with tag checked out on a detached
// HEAD and no local modifications or untracked files, whatever state the
// directory was left in by a previous run. A dest that exists but is not the
// root of a git checkout is removed and cloned afresh.
func (g GitCheckout) Checkout(ctx context.Context, dest, url, tag string) error {
	gitExe := g.Git
	if gitExe == "" {
		gitExe = "git"
	}
	parent := filepath.Dir(dest)
	// Stop git from walking up into a repository that encloses the work
	// directory.
	env := []string{"GIT_CEILING_DIRECTORIES=" + parent}
	git := func(args ...string) Invocation {
		return Invocation{
			Phase: PhaseCheckout,
			Dir:   dest,
			Args:  append([]string{gitExe}, args...),
			Env:   env,
		}
	}

	clone, err := needsClone(dest)
	if err != nil {
		return err
	}

	var steps []Invocation
	if clone {
		if !g.DryRun {
			if err := removeTree(dest); err != nil {
				return fmt.Errorf("failed to remove %s: %w", dest, err)
			}
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", parent, err)
			}
		}
		steps = append(steps, Invocation{
			Phase: PhaseCheckout,
			Dir:   parent,
			Args:  []string{gitExe, "clone", url, dest},
			Env:   env,
		})
	} else {
		steps = append(steps, git("fetch", "--tags", "--force", "origin"))
	}

	steps = append(steps,
		git("reset", "--hard"),
		git("clean", "-ffdx"),
		git("-c", "advice.detachedHead=false", "checkout", "--force", "--detach", tag),
		git("status", "--short", "--branch"),
	)

	for _, inv := range steps {
		if err := g.Runner.Run(ctx, inv); err != nil {
			return fmt.Errorf("%s failed: %w", inv, err)
		}
	}
	return nil
}

// needsClone reports whether dest lacks its own .git entry. Worktrees and
// submodules carry a .git file rather than a directory; both count.
func needsClone(dest string) (bool, error) {
	_, err := os.Lstat(filepath.Join(dest, ".git"))
	switch {
	case err == nil:
		return false, nil
	case os.IsPermission(err):
		return false, fmt.Errorf("failed to stat %s: %w", dest, err)
	}
	return true, nil
}
