package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/opus-domini/catwatch/internal/alerts"
	"github.com/opus-domini/catwatch/internal/backend"
	"github.com/opus-domini/catwatch/internal/config"
	"github.com/opus-domini/catwatch/internal/notify"
	"github.com/opus-domini/catwatch/internal/refresh"
	"github.com/opus-domini/catwatch/internal/session"
	"github.com/opus-domini/catwatch/internal/stats"
)

var (
	serveFn          = serve
	loadConfigFn     = config.Load
	currentVersionFn = currentVersion
)

const (
	cmdHelp       = "help"
	flagHelpShort = "-h"
	flagHelpLong  = "--help"

	commandTimeout = 30 * time.Second
)

type commandContext struct {
	stdout io.Writer
	stderr io.Writer
}

func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func writeln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}

func runCLI(args []string, stdout, stderr io.Writer) int {
	ctx := commandContext{stdout: stdout, stderr: stderr}

	if len(args) == 0 {
		return serveFn(serveOptions{})
	}

	switch args[0] {
	case "-v", "--version", "version":
		writef(stdout, "catwatch version %s\n", currentVersionFn())
		return 0
	case "serve":
		return runServeCommand(ctx, args[1:])
	case "alerts":
		return runAlertsCommand(ctx, args[1:])
	case "notifications":
		return runNotificationsCommand(ctx, args[1:])
	case "stats":
		return runStatsCommand(ctx, args[1:])
	case "cats":
		return runCatsCommand(ctx, args[1:])
	case "rooms":
		return runRoomsCommand(ctx, args[1:])
	case "doctor":
		return runDoctorCommand(ctx, args[1:])
	case cmdHelp, flagHelpShort, flagHelpLong:
		printRootHelp(stdout)
		return 0
	default:
		if strings.HasPrefix(args[0], "-") {
			return runServeCommand(ctx, args)
		}
		writef(stderr, "unknown command: %s\n\n", args[0])
		printRootHelp(stderr)
		return 2
	}
}

// parseFlags handles -help and rejects unexpected positional arguments
// unless allowArgs is set. It returns ok=false with the exit code to use.
func parseFlags(ctx commandContext, fs *flag.FlagSet, args []string, allowArgs bool, help func(io.Writer)) (int, bool) {
	fs.SetOutput(ctx.stderr)
	showHelp := fs.Bool("help", false, "show help")
	if err := fs.Parse(args); err != nil {
		return 2, false
	}
	if *showHelp {
		help(ctx.stdout)
		return 0, false
	}
	if !allowArgs && fs.NArg() > 0 {
		writef(ctx.stderr, "unexpected argument(s): %s\n", strings.Join(fs.Args(), " "))
		help(ctx.stderr)
		return 2, false
	}
	return 0, true
}

func runServeCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cat := fs.String("cat", "", "follow the alert view of this cat")
	if code, ok := parseFlags(ctx, fs, args, false, printServeHelp); !ok {
		return code
	}
	return serveFn(serveOptions{Cat: strings.TrimSpace(*cat)})
}

// withApp opens the shared dependencies for a one-shot command.
func withApp(ctx commandContext, name string, fn func(context.Context, *app) error) int {
	cfg := loadConfigFn()
	initLogger(cfg.LogLevel)
	a, err := openApp(cfg)
	if err != nil {
		writef(ctx.stderr, "%s failed: %v\n", name, err)
		return 1
	}
	defer a.Close()

	runCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := fn(runCtx, a); err != nil {
		writef(ctx.stderr, "%s failed: %v\n", name, err)
		return 1
	}
	return 0
}

func runAlertsCommand(ctx commandContext, args []string) int {
	if len(args) == 0 {
		printAlertsHelp(ctx.stderr)
		return 2
	}

	switch args[0] {
	case "list":
		return runAlertsListCommand(ctx, args[1:])
	case "read":
		return runAlertsReadCommand(ctx, args[1:])
	case "read-all":
		return runAlertsReadAllCommand(ctx, args[1:])
	case "delete":
		return runAlertsDeleteCommand(ctx, args[1:])
	case "check":
		return runAlertsCheckCommand(ctx, args[1:])
	case cmdHelp, flagHelpShort, flagHelpLong:
		printAlertsHelp(ctx.stdout)
		return 0
	default:
		writef(ctx.stderr, "unknown alerts command: %s\n\n", args[0])
		printAlertsHelp(ctx.stderr)
		return 2
	}
}

func newController(ctx commandContext, a *app, cat string) *alerts.Controller {
	sess := session.New()
	sess.Select(cat)
	sess.Show(session.ViewAlerts)
	return alerts.NewController(a.client, sess, newTextRenderer(ctx.stdout, ctx.stderr))
}

func runAlertsListCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("alerts list", flag.ContinueOnError)
	cat := fs.String("cat", "", "cat whose alerts are listed")
	unread := fs.Bool("unread", false, "only unread alerts")
	if code, ok := parseFlags(ctx, fs, args, false, printAlertsHelp); !ok {
		return code
	}
	if strings.TrimSpace(*cat) == "" {
		writeln(ctx.stderr, "--cat is required")
		return 2
	}
	return withApp(ctx, "alerts list", func(runCtx context.Context, a *app) error {
		c := newController(ctx, a, *cat)
		c.SetUnreadOnly(*unread)
		return c.Load(runCtx)
	})
}

func runAlertsReadCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("alerts read", flag.ContinueOnError)
	cat := fs.String("cat", "", "cat whose list is shown after marking")
	if code, ok := parseFlags(ctx, fs, args, true, printAlertsHelp); !ok {
		return code
	}
	ids, err := parseIDs(fs.Args())
	if err != nil {
		writef(ctx.stderr, "invalid alert id: %v\n", err)
		return 2
	}
	return withApp(ctx, "alerts read", func(runCtx context.Context, a *app) error {
		if strings.TrimSpace(*cat) == "" {
			if err := a.client.MarkRead(runCtx, ids); err != nil {
				return err
			}
			printNotice(ctx.stdout, fmt.Sprintf("marked %d alert(s) read", len(ids)))
			return nil
		}
		return newController(ctx, a, *cat).MarkRead(runCtx, ids)
	})
}

func runAlertsReadAllCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("alerts read-all", flag.ContinueOnError)
	cat := fs.String("cat", "", "cat whose alerts are marked read")
	if code, ok := parseFlags(ctx, fs, args, false, printAlertsHelp); !ok {
		return code
	}
	if strings.TrimSpace(*cat) == "" {
		writeln(ctx.stderr, "--cat is required")
		return 2
	}
	return withApp(ctx, "alerts read-all", func(runCtx context.Context, a *app) error {
		return newController(ctx, a, *cat).MarkAllRead(runCtx)
	})
}

func runAlertsDeleteCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("alerts delete", flag.ContinueOnError)
	cat := fs.String("cat", "", "cat the alerts belong to")
	if code, ok := parseFlags(ctx, fs, args, true, printAlertsHelp); !ok {
		return code
	}
	ids, err := parseIDs(fs.Args())
	if err != nil {
		writef(ctx.stderr, "invalid alert id: %v\n", err)
		return 2
	}
	cfg := loadConfigFn()
	initLogger(cfg.LogLevel)
	a, err := openApp(cfg)
	if err != nil {
		writef(ctx.stderr, "alerts delete failed: %v\n", err)
		return 1
	}
	defer a.Close()

	runCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	// The renderer already reported a failed delete.
	if _, err := newController(ctx, a, *cat).Delete(runCtx, ids); err != nil {
		return 1
	}
	return 0
}

func runAlertsCheckCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("alerts check", flag.ContinueOnError)
	if code, ok := parseFlags(ctx, fs, args, false, printAlertsHelp); !ok {
		return code
	}
	return withApp(ctx, "alerts check", func(runCtx context.Context, a *app) error {
		svc, board := a.newWatcher(ctx.stdout)
		defer board.Close()
		res, err := svc.Tick(runCtx)
		if err != nil {
			return err
		}
		printRows(ctx.stdout, []outputRow{
			{Key: "day", Value: res.Day},
			{Key: "fetched", Value: strconv.Itoa(res.Fetched)},
			{Key: "new", Value: strconv.Itoa(res.Notified)},
		})
		return nil
	})
}

func runNotificationsCommand(ctx commandContext, args []string) int {
	if len(args) > 0 && args[0] == "open" {
		return runNotificationsOpenCommand(ctx, args[1:])
	}
	fs := flag.NewFlagSet("notifications", flag.ContinueOnError)
	history := fs.Bool("history", false, "show the local log of emitted notifications")
	limit := fs.Int("limit", 50, "maximum history rows")
	if code, ok := parseFlags(ctx, fs, args, false, printNotificationsHelp); !ok {
		return code
	}
	return withApp(ctx, "notifications", func(runCtx context.Context, a *app) error {
		if *history {
			return printNotificationHistory(runCtx, ctx.stdout, a, *limit)
		}
		c := alerts.NewController(a.client, session.New(), newTextRenderer(ctx.stdout, ctx.stderr))
		_, err := c.LoadUnread(runCtx)
		return err
	})
}

func printNotificationHistory(ctx context.Context, w io.Writer, a *app, limit int) error {
	items, err := a.store.ListNotifications(ctx, "", limit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		writeln(w, "no notifications recorded")
		return nil
	}
	rows := [][]string{{"AT", "ALERT", "CAT", "TYPE", "MESSAGE"}}
	for _, n := range items {
		rows = append(rows, []string{n.NotifiedAt, strconv.FormatInt(n.AlertID, 10), n.Cat, n.AlertType, n.Message})
	}
	printTable(w, rows)
	return nil
}

func runNotificationsOpenCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("notifications open", flag.ContinueOnError)
	if code, ok := parseFlags(ctx, fs, args, true, printNotificationsHelp); !ok {
		return code
	}
	ids, err := parseIDs(fs.Args())
	if err != nil || len(ids) != 1 {
		writeln(ctx.stderr, "exactly one alert id is required")
		return 2
	}
	return withApp(ctx, "notifications open", func(runCtx context.Context, a *app) error {
		unread, err := a.client.Alerts(runCtx, backend.AlertQuery{IncludeRead: backend.IncludeRead(false)})
		if err != nil {
			return err
		}
		for _, alert := range unread {
			if alert.ID == ids[0] {
				c := alerts.NewController(a.client, session.New(), newTextRenderer(ctx.stdout, ctx.stderr))
				return c.Open(runCtx, alert)
			}
		}
		return fmt.Errorf("alert %d is not an unread notification", ids[0])
	})
}

func runStatsCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	cat := fs.String("cat", "", "cat whose statistics are shown")
	period := fs.String("period", "daily", "daily|monthly|yearly")
	year := fs.Int("year", 0, "year (daily, monthly) or end year (yearly)")
	month := fs.Int("month", 0, "month 1-12 (daily)")
	startYear := fs.Int("start-year", 0, "first year (yearly)")
	endYear := fs.Int("end-year", 0, "last year (yearly), overrides --year")
	xlsxPath := fs.String("xlsx", "", "also write the aligned series to this .xlsx file")
	if code, ok := parseFlags(ctx, fs, args, false, printStatsHelp); !ok {
		return code
	}
	if strings.TrimSpace(*cat) == "" {
		writeln(ctx.stderr, "--cat is required")
		return 2
	}
	p, err := stats.ParsePeriod(*period)
	if err != nil {
		writef(ctx.stderr, "%v\n", err)
		return 2
	}
	q := stats.Query{Cat: strings.TrimSpace(*cat), Period: p, Year: *year, Month: *month, StartYear: *startYear, EndYear: *endYear}
	if p == stats.Yearly && q.EndYear == 0 {
		q.EndYear = *year
	}

	return withApp(ctx, "stats", func(runCtx context.Context, a *app) error {
		res, err := stats.NewService(a.client, a.clock).Load(runCtx, q)
		if err != nil {
			return err
		}
		printStats(ctx.stdout, res)
		if *xlsxPath == "" {
			return nil
		}
		f, err := os.Create(*xlsxPath) //nolint:gosec // path is an explicit CLI argument
		if err != nil {
			return err
		}
		if err := stats.WriteXLSX(f, res.Aligned); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		printNotice(ctx.stdout, "wrote "+*xlsxPath)
		return nil
	})
}

func printStats(w io.Writer, res stats.Result) {
	printHeading(w, fmt.Sprintf("Statistics: %s (%s)", res.Query.Cat, res.Query.Period))
	header := append([]string{"LABEL"}, res.Aligned.Names...)
	rows := [][]string{header}
	for i, label := range res.Aligned.Labels {
		row := []string{label}
		for _, name := range res.Aligned.Names {
			row = append(row, formatValue(res.Aligned.Values(name)[i]))
		}
		rows = append(rows, row)
	}
	printTable(w, rows)
	writeln(w, "")
	printRows(w, []outputRow{
		{Key: "sleep", Value: fmt.Sprintf("%.1f h", res.Summary.SleepHours)},
		{Key: "eat", Value: formatValue(res.Summary.EatCount)},
		{Key: "excrete", Value: formatValue(res.Summary.ExcreteCount)},
	})
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func runCatsCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("cats", flag.ContinueOnError)
	if code, ok := parseFlags(ctx, fs, args, false, printCatsHelp); !ok {
		return code
	}
	return withApp(ctx, "cats", func(runCtx context.Context, a *app) error {
		list, err := a.client.Cats(runCtx)
		if err != nil {
			return err
		}
		cats := refresh.Dedupe(list)
		if len(cats) == 0 {
			writeln(ctx.stdout, "no cats found")
			return nil
		}
		rows := [][]string{{"NAME", "ROOM", "STATUS"}}
		for _, c := range cats {
			rows = append(rows, []string{c.Name, orDash(c.CurrentRoom), orDash(c.Status)})
		}
		printTable(ctx.stdout, rows)
		return nil
	})
}

func runRoomsCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("rooms", flag.ContinueOnError)
	if code, ok := parseFlags(ctx, fs, args, false, printRoomsHelp); !ok {
		return code
	}
	return withApp(ctx, "rooms", func(runCtx context.Context, a *app) error {
		rooms, err := a.client.Rooms(runCtx)
		if err != nil {
			return err
		}
		if len(rooms) == 0 {
			writeln(ctx.stdout, "no rooms found")
			return nil
		}
		rows := [][]string{{"ROOM", "CAMERA", "FEED"}}
		for _, room := range rooms {
			if len(room.Cameras) == 0 {
				rows = append(rows, []string{room.Name, "-", "-"})
			}
			for _, cam := range room.Cameras {
				rows = append(rows, []string{room.Name, cam.Label, a.client.FeedURL(room.Name, cam.Index)})
			}
		}
		printTable(ctx.stdout, rows)
		return nil
	})
}

func runDoctorCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	if code, ok := parseFlags(ctx, fs, args, false, printDoctorHelp); !ok {
		return code
	}

	cfg := loadConfigFn()
	rows := []outputRow{
		{Key: "os", Value: runtime.GOOS + "/" + runtime.GOARCH},
		{Key: "config file", Value: cfg.Path()},
		{Key: "data dir", Value: cfg.DataDir},
		{Key: "api base", Value: cfg.APIBase},
		{Key: "poll interval", Value: cfg.Watcher.PollInterval.String()},
		{Key: "refresh interval", Value: cfg.Refresh.Interval.String()},
		{Key: "seen backend", Value: cfg.Seen.Backend},
	}
	popupState := "denied"
	if notify.NewPopup(notify.PopupOptions{Command: cfg.Notify.PopupCommand}).RequestPermission() {
		popupState = "granted"
	}
	rows = append(rows, outputRow{Key: "popup", Value: popupState})

	if err := cfg.Validate(); err != nil {
		rows = append(rows, outputRow{Key: "config", Value: "error"})
		printHeading(ctx.stdout, "catwatch doctor report")
		printRows(ctx.stdout, rows)
		writef(ctx.stderr, "doctor failed: %v\n", err)
		return 1
	}
	rows = append(rows, outputRow{Key: "config", Value: "ok"})

	a, err := openApp(cfg)
	if err != nil {
		rows = append(rows, outputRow{Key: "store", Value: "error"})
	} else {
		defer a.Close()
		rows = append(rows, outputRow{Key: "store", Value: a.store.Path()})
		runCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer cancel()
		backendState := "reachable"
		if _, err := a.client.Cats(runCtx); err != nil {
			backendState = "unreachable"
		}
		rows = append(rows, outputRow{Key: "backend", Value: backendState})
		set, day := a.tracker.Load(runCtx)
		rows = append(rows, outputRow{Key: "seen today", Value: fmt.Sprintf("%d (%s)", set.Len(), day)})
		if cfg.Seen.Backend == config.SeenBackendSQLite {
			if days, err := a.store.ListSeenDays(runCtx); err == nil {
				rows = append(rows, outputRow{Key: "seen days kept", Value: strconv.Itoa(len(days))})
			}
		}
	}

	printHeading(ctx.stdout, "catwatch doctor report")
	printRows(ctx.stdout, rows)
	return 0
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, raw := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%q", raw)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("none given")
	}
	return ids, nil
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func printRootHelp(w io.Writer) {
	writeln(w, "catwatch command-line interface")
	writeln(w, "")
	writeln(w, "Usage:")
	writeln(w, "  catwatch [serve] [-cat NAME]")
	writeln(w, "  catwatch alerts <list|read|read-all|delete|check>")
	writeln(w, "  catwatch notifications [open ID]")
	writeln(w, "  catwatch stats -cat NAME [-period daily|monthly|yearly]")
	writeln(w, "  catwatch cats | rooms | doctor | version")
	writeln(w, "")
	writeln(w, "Commands:")
	writeln(w, "  serve          Watch alerts and refresh cats until interrupted (default)")
	writeln(w, "  alerts         List, mark read, delete or check alerts")
	writeln(w, "  notifications  Show unread alerts of every cat")
	writeln(w, "  stats          Show aligned statistics of a cat")
	writeln(w, "  cats           List monitored cats")
	writeln(w, "  rooms          List rooms, cameras and feed URLs")
	writeln(w, "  doctor         Check local environment and runtime config")
}

func printServeHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  catwatch serve [-cat NAME]")
	writeln(w, "")
	writeln(w, "Polls alerts, raises notifications and refreshes cats using config file/env defaults.")
}

func printAlertsHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  catwatch alerts list -cat NAME [-unread]")
	writeln(w, "  catwatch alerts read [-cat NAME] ID...")
	writeln(w, "  catwatch alerts read-all -cat NAME")
	writeln(w, "  catwatch alerts delete [-cat NAME] ID...")
	writeln(w, "  catwatch alerts check")
}

func printNotificationsHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  catwatch notifications [-history] [-limit 50]")
	writeln(w, "  catwatch notifications open ID")
}

func printStatsHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  catwatch stats -cat NAME [-period daily] [-year Y] [-month M] [-start-year Y] [-end-year Y] [-xlsx FILE]")
}

func printCatsHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  catwatch cats")
}

func printRoomsHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  catwatch rooms")
}

func printDoctorHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  catwatch doctor")
}

func currentVersion() string {
	if bi, ok := debug.ReadBuildInfo(); ok {
		if strings.TrimSpace(bi.Main.Version) != "" && bi.Main.Version != "(devel)" {
			return bi.Main.Version
		}
	}
	return "dev"
}
