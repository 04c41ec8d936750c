package nativedeps

import (
	"fmt"
	"io"
	"os"
)

// color-compatible printer interface (works with *color.Theme, color.RGBColor and color.Tag)
type colorPrinter interface {
	Sprintf(format string, a ...any) string
}

// Console prints user-facing progress lines as "-> " arrows.
type Console struct {
	Out     io.Writer
	Verbose bool
}

// NewConsole returns a console writing to out, or stdout when out is nil.
func NewConsole(out io.Writer, verbose bool) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{Out: out, Verbose: verbose}
}

// cPrintf prints with a colored style or falls back to plain formatting when nil
func (c *Console) cPrintf(p colorPrinter, format string, a ...any) {
	if p == nil {
		fmt.Fprintf(c.Out, format, a...)
		return
	}
	fmt.Fprint(c.Out, p.Sprintf(format, a...))
}

// Arrowf prints an arrow-prefixed line.
func (c *Console) Arrowf(p colorPrinter, format string, a ...any) {
	fmt.Fprint(c.Out, colArrow.Sprint("-> "))
	c.cPrintf(p, format+"\n", a...)
}

// debugf prints debug messages when Verbose is true
func (c *Console) debugf(format string, a ...any) {
	if c.Verbose {
		fmt.Fprintf(c.Out, format, a...)
	}
}
