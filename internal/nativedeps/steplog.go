package nativedeps

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// stepLog collects the output of one step. The plain log is written while the
// step runs and compressed to <name>.log.xz when it is closed.
type stepLog struct {
	path string
	file *os.File
	w    io.Writer
}

func openStepLog(path string, console io.Writer) (*stepLog, error) {
	plain := strings.TrimSuffix(path, ".xz")
	if err := os.MkdirAll(filepath.Dir(plain), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	f, err := os.Create(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to create log %s: %w", plain, err)
	}
	var w io.Writer = f
	if console != nil {
		w = io.MultiWriter(f, console)
	}
	return &stepLog{path: path, file: f, w: w}, nil
}

func (l *stepLog) Write(p []byte) (int, error) { return l.w.Write(p) }

// Close compresses the plain log and removes it.
func (l *stepLog) Close() error {
	plain := l.file.Name()
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := compressXZ(plain, l.path); err != nil {
		return fmt.Errorf("failed to compress log %s: %w", plain, err)
	}
	return os.Remove(plain)
}

// compressXZ compresses a file using XZ
func compressXZ(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dest.Close()

	xzWriter, err := xz.NewWriter(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(xzWriter, src); err != nil {
		xzWriter.Close()
		return err
	}
	return xzWriter.Close()
}

// readStepLog returns the decompressed contents of a step log.
func readStepLog(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r, err := xz.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to create xz reader for %s: %w", path, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}
