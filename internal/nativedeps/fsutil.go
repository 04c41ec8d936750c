package nativedeps

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ResetDir makes path an existing, empty directory.
func ResetDir(path string) error {
	if err := removeTree(path); err != nil {
		return fmt.Errorf("failed to clean %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create dir %s: %w", path, err)
	}
	return nil
}

// removeTree removes path recursively. Read-only entries (git packs, MSVC
// outputs) make a plain RemoveAll fail on Windows; permissions are relaxed and
// the removal retried once.
func removeTree(path string) error {
	err := os.RemoveAll(path)
	if err == nil {
		return nil
	}
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			_ = os.Chmod(p, 0o755)
		} else if d.Type().IsRegular() {
			_ = os.Chmod(p, 0o644)
		}
		return nil
	})
	if err2 := os.RemoveAll(path); err2 != nil {
		return fmt.Errorf("%w (retry also failed: %v)", err, err2)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}

	// Copy file mode
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.Chmod(dst, info.Mode())
}

// copyDir recursively copies a directory from src to dst
func copyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
		} else {
			if err := copyFile(srcPath, dstPath); err != nil {
				return err
			}
		}
	}

	return nil
}

// relocateDir moves src to dst, replacing dst. Rename is tried first; a copy
// followed by removal covers moves across volumes.
func relocateDir(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("nothing to relocate at %s: %w", src, err)
	}
	if err := removeTree(dst); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dst, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		if cErr := copyDir(src, dst); cErr != nil {
			return fmt.Errorf("failed to relocate %s to %s: %w (rename: %v)", src, dst, cErr, err)
		}
		return removeTree(src)
	}
	return nil
}

// isEmptyDir reports whether path is an existing directory with no entries.
func isEmptyDir(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
