package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/opus-domini/catwatch/internal/alerts"
	"github.com/opus-domini/catwatch/internal/backend"
)

const createdLayout = "2006-01-02 15:04"

// textRenderer prints the alert views as terminal tables.
type textRenderer struct {
	out io.Writer
	err io.Writer
}

func newTextRenderer(out, errOut io.Writer) *textRenderer {
	return &textRenderer{out: out, err: errOut}
}

func (r *textRenderer) RenderGroup(g alerts.Group) {
	title := "Notifications"
	if g.Cat != "" {
		title = "Alerts: " + g.Cat
	}
	printHeading(r.out, fmt.Sprintf("%s (%d)", title, len(g.Alerts)))
	if len(g.Alerts) == 0 {
		writeln(r.out, "no alerts")
		return
	}
	rows := [][]string{{"", "ID", "CAT", "PRIORITY", "TYPE", "CREATED", "READ", "MESSAGE"}}
	for _, a := range g.Alerts {
		marker := ""
		if g.FocusID != 0 && a.ID == g.FocusID {
			marker = ">"
		}
		rows = append(rows, []string{
			marker,
			strconv.FormatInt(a.ID, 10),
			a.Cat,
			priorityLabel(r.out, a.Type),
			a.Type,
			formatCreated(a.CreatedAt),
			readLabel(a),
			a.Message,
		})
	}
	printTable(r.out, rows)
}

func (r *textRenderer) RenderPrompt(message string) {
	printWarning(r.out, message)
}

func (r *textRenderer) Remove(ids []int64) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	printNotice(r.out, "deleted alert(s): "+strings.Join(parts, " "))
}

func (r *textRenderer) Failure(op string, err error) {
	writef(r.err, "%s failed: %v\n", op, err)
}

func priorityLabel(w io.Writer, alertType string) string {
	p := alerts.Priority(alertType)
	if p == "" {
		return "-"
	}
	return styleFor(w).value(p)
}

func readLabel(a backend.Alert) string {
	if a.IsRead {
		return "yes"
	}
	return "no"
}

func formatCreated(at time.Time) string {
	if at.IsZero() {
		return "-"
	}
	return at.Local().Format(createdLayout)
}
