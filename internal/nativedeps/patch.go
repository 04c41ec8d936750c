package nativedeps

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// applyPatch rewrites one file of a checkout. A pattern that matches nothing
// fails with ErrPatchNotApplied.
func applyPatch(srcDir string, p Patch) error {
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		return fmt.Errorf("invalid patch pattern %q: %w", p.Pattern, err)
	}

	path := filepath.Join(srcDir, filepath.FromSlash(p.File))
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !re.Match(data) {
		return fmt.Errorf("%w: %q in %s", ErrPatchNotApplied, p.Pattern, p.File)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	patched := re.ReplaceAll(data, []byte(p.Replace))
	if err := os.WriteFile(path, patched, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
