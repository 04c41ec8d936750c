package nativedeps

import (
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// progress tracks steps within a pass.
type progress interface {
	Describe(description string)
	Add(num int) error
	Finish() error
}

type noProgress struct{}

func (noProgress) Describe(string) {}
func (noProgress) Add(int) error   { return nil }
func (noProgress) Finish() error   { return nil }

// newProgress shows a step counter on stderr when it is a terminal.
func newProgress(enabled bool, total int, desc string) progress {
	if !enabled || !term.IsTerminal(int(os.Stderr.Fd())) {
		return noProgress{}
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionClearOnFinish(),
	)
}
