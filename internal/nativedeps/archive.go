package nativedeps

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// ArchiveFormat names a package container/compression pair.
type ArchiveFormat string

const (
	FormatZstd ArchiveFormat = "zst"
	FormatGzip ArchiveFormat = "gz"
	FormatXZ   ArchiveFormat = "xz"
	FormatZip  ArchiveFormat = "zip"
)

// ArchiveFormats lists the accepted --format values.
var ArchiveFormats = []ArchiveFormat{FormatZstd, FormatGzip, FormatXZ, FormatZip}

// ParseArchiveFormat validates a --format value.
func ParseArchiveFormat(s string) (ArchiveFormat, error) {
	for _, f := range ArchiveFormats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown archive format %q (want zst, gz, xz or zip)", s)
}

// Ext is the file extension of archives in this format.
func (f ArchiveFormat) Ext() string {
	if f == FormatZip {
		return ".zip"
	}
	return ".tar." + string(f)
}

// PackageName is the archive file name for one variant.
func PackageName(v Variant, f ArchiveFormat) string {
	return "nativedeps-" + string(v) + f.Ext()
}

// PackageVariant archives out/<variant> into packages/ and writes a BLAKE3
// sidecar next to it. It returns the archive path.
func PackageVariant(layout Layout, v Variant, format ArchiveFormat, console *Console) (string, error) {
	srcDir := layout.Out(v)
	if info, err := os.Stat(srcDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%s does not exist, run the %s pass first", srcDir, v)
	}
	if err := os.MkdirAll(layout.PackagesDir(), 0o755); err != nil {
		return "", fmt.Errorf("failed to create packages dir: %w", err)
	}
	dest := filepath.Join(layout.PackagesDir(), PackageName(v, format))

	console.debugf("Archiving %s into %s\n", srcDir, dest)
	if err := writeArchive(srcDir, dest, format); err != nil {
		os.Remove(dest)
		return "", err
	}
	sum, err := FileDigest(dest)
	if err != nil {
		return "", err
	}
	sidecar := dest + ".b3"
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(dest))
	if err := os.WriteFile(sidecar, []byte(line), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", sidecar, err)
	}
	console.Arrowf(colSuccess, "Package created: %s", dest)
	return dest, nil
}

func writeArchive(srcDir, dest string, format ArchiveFormat) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if err := encodeArchive(srcDir, out, format); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to close %s: %w", dest, err)
	}
	return nil
}

// encodeArchive writes srcDir to out in format. out is left open.
func encodeArchive(srcDir string, out io.Writer, format ArchiveFormat) error {
	if format == FormatZip {
		return writeZip(srcDir, out)
	}

	var (
		cw  io.WriteCloser
		err error
	)
	switch format {
	case FormatZstd:
		cw, err = zstd.NewWriter(out)
	case FormatGzip:
		cw = pgzip.NewWriter(out)
	case FormatXZ:
		cw, err = xz.NewWriter(out)
	default:
		err = fmt.Errorf("unknown archive format %q", format)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s writer: %w", format, err)
	}
	if err := writeTar(srcDir, cw); err != nil {
		cw.Close()
		return err
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("failed to finish %s stream: %w", format, err)
	}
	return nil
}

// walkSorted visits srcDir in lexical order, skipping the root itself.
func walkSorted(srcDir string, fn func(rel string, path string, info fs.FileInfo) error) error {
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == srcDir {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		info, err := os.Lstat(path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), path, info)
	})
}

func writeTar(srcDir string, w io.Writer) error {
	tw := tar.NewWriter(w)
	err := walkSorted(srcDir, func(rel, path string, info fs.FileInfo) error {
		var linkTarget string
		if info.Mode()&os.ModeSymlink != 0 {
			var err error
			if linkTarget, err = os.Readlink(path); err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
		}
		hdr, err := tar.FileInfoHeader(info, linkTarget)
		if err != nil {
			return err
		}
		hdr.Name = rel
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "root", "root"
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			return copyInto(tw, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add files to archive: %w", err)
	}
	return tw.Close()
}

func writeZip(srcDir string, w io.Writer) error {
	zw := zip.NewWriter(w)
	err := walkSorted(srcDir, func(rel, path string, info fs.FileInfo) error {
		if info.Mode()&os.ModeSymlink != 0 {
			// zip has no portable symlinks; store the target file instead
			resolved, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("resolve symlink %s: %w", path, err)
			}
			info = resolved
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = rel
		if info.IsDir() {
			hdr.Name += "/"
		} else {
			hdr.Method = zip.Deflate
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			return copyInto(fw, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add files to archive: %w", err)
	}
	return zw.Close()
}

func copyInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// ListArchive returns the entry names of a package, directories suffixed with "/".
func ListArchive(path string) ([]string, error) {
	if strings.HasSuffix(path, ".zip") {
		r, err := zip.OpenReader(path)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		names := make([]string, 0, len(r.File))
		for _, f := range r.File {
			names = append(names, f.Name)
		}
		return names, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader
	switch {
	case strings.HasSuffix(path, ".tar.zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	case strings.HasSuffix(path, ".tar.gz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(path, ".tar.xz"):
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, err
		}
		r = xr
	default:
		return nil, fmt.Errorf("unsupported archive %s", path)
	}

	var names []string
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		names = append(names, hdr.Name)
	}
	return names, nil
}
