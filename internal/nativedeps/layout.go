package nativedeps

import "path/filepath"

// Variant selects the build configuration of a pass.
type Variant string

const (
	Release Variant = "release"
	Debug   Variant = "debug"
)

// VariantFor maps a resolved debug flag to its variant.
func VariantFor(debug bool) Variant {
	if debug {
		return Debug
	}
	return Release
}

// BuildConfig is the build-system configuration name (CMake/MSBuild style).
func (v Variant) BuildConfig() string {
	if v == Debug {
		return "Debug"
	}
	return "Release"
}

// Layout derives every path the orchestrator touches from one work directory.
type Layout struct {
	Root string
}

func (l Layout) SrcRoot() string             { return filepath.Join(l.Root, "src") }
func (l Layout) BuildRoot() string           { return filepath.Join(l.Root, "build") }
func (l Layout) DistRoot() string            { return filepath.Join(l.Root, "dist") }
func (l Layout) OutRoot() string             { return filepath.Join(l.Root, "out") }
func (l Layout) PackagesDir() string         { return filepath.Join(l.Root, "packages") }
func (l Layout) LockPath() string            { return filepath.Join(l.Root, lockFileName) }
func (l Layout) Src(dirname string) string   { return filepath.Join(l.SrcRoot(), dirname) }
func (l Layout) Build(dirname string) string { return filepath.Join(l.BuildRoot(), dirname) }
func (l Layout) Dist(dirname string) string  { return filepath.Join(l.DistRoot(), dirname) }
func (l Layout) Out(v Variant) string        { return filepath.Join(l.OutRoot(), string(v)) }
func (l Layout) LogDir(v Variant) string     { return filepath.Join(l.Root, "logs", string(v)) }

// LogFile is the compressed log of one step in one pass.
func (l Layout) LogFile(v Variant, name string) string {
	return filepath.Join(l.LogDir(v), name+".log.xz")
}
