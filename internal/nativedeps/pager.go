package nativedeps

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/term"
)

// RunPager shows lines in a scrollable view when stdout is a terminal and
// the text does not fit; otherwise it prints them to out.
func RunPager(out io.Writer, title string, lines []string) error {
	fd := int(os.Stdout.Fd())
	if out != os.Stdout || !term.IsTerminal(fd) {
		return printLines(out, lines)
	}

	// Two rows go to the border.
	if _, height, err := term.GetSize(fd); err == nil && len(lines) <= height-2 {
		return printLines(out, lines)
	}

	app := tview.NewApplication()
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false)
	textView.SetBorder(true).SetTitle(" " + title + " ")

	// build tools emit ANSI colors; translate rather than strip them
	fmt.Fprint(tview.ANSIWriter(textView), strings.Join(lines, "\n"))

	footer := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]↑/↓ PgUp/PgDn Home/End scroll, 'q' or Esc quits[white]")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(textView, 0, 1, true).
		AddItem(footer, 1, 0, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc, tcell.KeyCtrlQ:
			app.Stop()
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'q' {
				app.Stop()
				return nil
			}
		}
		return event
	})

	if err := app.SetRoot(flex, true).SetFocus(textView).Run(); err != nil {
		return fmt.Errorf("pager execution failed: %w", err)
	}
	return nil
}

func printLines(out io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

// ShowStepLog decompresses the log of one step and pages it.
func ShowStepLog(out io.Writer, layout Layout, v Variant, name string) error {
	if _, err := LookupStep(name); err != nil {
		return err
	}
	path := layout.LogFile(v, name)
	text, err := readStepLog(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no %s log for %s (expected %s)", v, name, path)
		}
		return err
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	return RunPager(out, fmt.Sprintf("%s (%s)", name, v), lines)
}
