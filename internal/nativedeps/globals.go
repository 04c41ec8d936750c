package nativedeps

import (
	"errors"

	"github.com/gookit/color"
)

// Well-known file and directory names below the work directory.
const (
	ConfigFile        = "config.json"
	DefaultConfigFile = "config.default.json"
	lockFileName      = ".nativedeps.lock"
	envPrefix         = "NATIVEDEPS"
)

var (
	version   = "dev" // overridden at build time
	buildDate = "unknown"

	errDependencyNotConfigured = errors.New("dependency not configured")
	errRunLocked               = errors.New("another nativedeps run holds the lock")
	// ErrPatchNotApplied is returned when a source patch pattern matches nothing.
	ErrPatchNotApplied = errors.New("patch pattern not found")
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)
