package main

import (
	"io"
	"os"
	"strings"
	"text/tabwriter"

	isatty "github.com/mattn/go-isatty"
)

const (
	sgrReset  = "\033[0m"
	sgrBold   = "\033[1m"
	sgrDim    = "\033[2m"
	sgrGreen  = "\033[32m"
	sgrYellow = "\033[33m"
	sgrRed    = "\033[31m"
)

type outputRow struct {
	Key   string
	Value string
}

// termStyle decides once per writer whether ANSI styling is emitted.
// NO_COLOR, TERM=dumb and non-terminal writers all print plain text.
type termStyle bool

func styleFor(w io.Writer) termStyle {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" ||
		strings.EqualFold(strings.TrimSpace(os.Getenv("TERM")), "dumb") {
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return termStyle(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func (s termStyle) paint(sgr, text string) string {
	if !s || text == "" {
		return text
	}
	return sgr + text + sgrReset
}

// value colors the words commands report as states.
func (s termStyle) value(text string) string {
	if !s {
		return text
	}
	return colorizeValue(text)
}

func (s termStyle) line(w io.Writer, sgr, text string) {
	writeln(w, s.paint(sgr, text))
}

// printRows writes "key: value" lines; on a terminal keys are dimmed and
// the values aligned in one column.
func printRows(w io.Writer, rows []outputRow) {
	style := styleFor(w)
	if !style {
		for _, row := range rows {
			writef(w, "%s: %s\n", row.Key, row.Value)
		}
		return
	}
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		table = append(table, []string{style.paint(sgrDim, row.Key), style.value(row.Value)})
	}
	writeTable(w, table)
}

// printTable writes tab-aligned columns; the first row is the header.
func printTable(w io.Writer, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	style := styleFor(w)
	if style {
		header := make([]string, len(rows[0]))
		for i, cell := range rows[0] {
			header[i] = style.paint(sgrBold, cell)
		}
		rows = append([][]string{header}, rows[1:]...)
	}
	writeTable(w, rows)
}

// writeTable aligns cells with a tabwriter. Styled cells use the same
// escape sequence per column so the padding stays consistent.
func writeTable(w io.Writer, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	for _, row := range rows {
		_, _ = io.WriteString(tw, strings.Join(row, "\t")+"\n")
	}
	_ = tw.Flush()
}

func printHeading(w io.Writer, title string) { styleFor(w).line(w, sgrBold, title) }

func printNotice(w io.Writer, message string) { styleFor(w).line(w, sgrGreen, message) }

func printWarning(w io.Writer, message string) { styleFor(w).line(w, sgrYellow, message) }

func colorizeValue(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "ok", "yes", "up", "granted", "reachable", "low":
		return sgrGreen + value + sgrReset
	case "false", "unavailable", "failed", "error", "down", "denied", "unreachable", "high":
		return sgrRed + value + sgrReset
	case "-", "unknown", "n/a", "medium":
		return sgrYellow + value + sgrReset
	default:
		return value
	}
}
