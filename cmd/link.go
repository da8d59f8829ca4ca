package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/okian/ttlink/internal/adapters/ics"
	service "github.com/okian/ttlink/internal/app"
	"github.com/okian/ttlink/internal/domain/model"
	"github.com/okian/ttlink/internal/domain/types"
	"github.com/okian/ttlink/pkg/logger"
)

const (
	dayLayout        = "2006-01-02"
	runPollInterval  = 200 * time.Millisecond
	defaultWindowLen = 7 * 24 * time.Hour
)

var linkFlags struct {
	icsPath       string
	workItemsPath string
	from          string
	to            string
	timezone      string
	selections    []string
	register      bool
}

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link calendar events to work items and optionally register them",
	Long: `Reads events from an ICS file, links them using history and the configured
rules, and prints the result. Work items come from a JSON file or, when no
file is given, from TimeTracker. --select applies manual choices for unlinked
events; --register sends the linked pairs to TimeTracker.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runLink(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	f := linkCmd.Flags()
	f.StringVar(&linkFlags.icsPath, "ics", "", "ICS calendar file (required)")
	f.StringVar(&linkFlags.workItemsPath, "workitems", "", "JSON work item tree; fetched from TimeTracker when empty")
	f.StringVar(&linkFlags.from, "from", "", "first day, YYYY-MM-DD (default: Monday of this week)")
	f.StringVar(&linkFlags.to, "to", "", "last day, YYYY-MM-DD, inclusive (default: seven days from --from)")
	f.StringVar(&linkFlags.timezone, "tz", "Local", "time zone for floating times and day bounds")
	f.StringArrayVar(&linkFlags.selections, "select", nil, "manual choice as EVENT_UUID=WORK_ITEM_ID (repeatable)")
	f.BoolVar(&linkFlags.register, "register", false, "register linked pairs with TimeTracker")
	_ = linkCmd.MarkFlagRequired("ics")
	rootCmd.AddCommand(linkCmd)
}

func runLink(ctx context.Context, out io.Writer) error {
	loc, err := time.LoadLocation(linkFlags.timezone)
	if err != nil {
		return fmt.Errorf("--tz: %w", err)
	}
	from, to, err := window(linkFlags.from, linkFlags.to, loc, time.Now())
	if err != nil {
		return err
	}
	selections, err := parseSelections(linkFlags.selections)
	if err != nil {
		return err
	}

	f, err := os.Open(linkFlags.icsPath)
	if err != nil {
		return err
	}
	events, err := ics.Read(ctx, f, from, to, ics.WithLocation(loc), ics.WithLogger(logger.Named("ics")))
	_ = f.Close()
	if err != nil {
		return err
	}

	tracker, err := newTracker(cfg)
	if err != nil {
		return err
	}
	var items []model.WorkItem
	switch {
	case linkFlags.workItemsPath != "":
		if items, err = readWorkItems(linkFlags.workItemsPath); err != nil {
			return err
		}
	case tracker != nil:
		if items, err = tracker.WorkItems(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("--workitems is required: %w", errNoTracker)
	}

	svc, err := startService(ctx, cfg, tracker)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Stop(context.WithoutCancel(ctx)) }()

	report, err := svc.AutoLink(ctx, events, items)
	if err != nil {
		return err
	}

	pairs := report.Linked
	for _, s := range selections {
		sel, err := svc.SelectWorkItem(ctx, s.eventID, s.workItemID, report.Unlinked, items)
		if err != nil {
			return err
		}
		if !sel.Success {
			fmt.Fprintf(out, "%s %s=%s: %s\n", color.RedString("✗"), s.eventID, s.workItemID, sel.Message())
			continue
		}
		pairs = append(pairs, sel.Pair)
		report.Unlinked = dropEvent(report.Unlinked, s.eventID)
	}
	if len(pairs) > len(report.Linked) {
		guard, err := svc.CheckDuplicates(pairs)
		if err != nil {
			return err
		}
		pairs = guard.Kept
		report.Duplicates = append(report.Duplicates, guard.Duplicates...)
	}
	report.Linked = pairs

	printReport(out, report, loc)

	if !linkFlags.register || len(pairs) == 0 {
		return nil
	}
	if tracker == nil {
		return errNoTracker
	}
	id, err := svc.StartRun(ctx, pairs, nil)
	if err != nil {
		return err
	}
	st, err := waitRun(ctx, svc, id)
	if err != nil {
		return err
	}
	printRun(out, st)
	if st.Progress.Error > 0 {
		return fmt.Errorf("%d of %d registrations failed", st.Progress.Error, st.Progress.Total)
	}
	if len(st.HistoryErrors) > 0 {
		return fmt.Errorf("history not recorded: %s", st.HistoryErrors[0].Message)
	}
	return nil
}

// window resolves the --from/--to flags to a half-open range.
func window(fromFlag, toFlag string, loc *time.Location, now time.Time) (time.Time, time.Time, error) {
	var from time.Time
	if fromFlag == "" {
		day := now.In(loc)
		offset := (int(day.Weekday()) + 6) % 7
		from = time.Date(day.Year(), day.Month(), day.Day()-offset, 0, 0, 0, 0, loc)
	} else {
		d, err := time.ParseInLocation(dayLayout, fromFlag, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
		}
		from = d
	}
	to := from.Add(defaultWindowLen)
	if toFlag != "" {
		d, err := time.ParseInLocation(dayLayout, toFlag, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
		}
		to = d.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("--to must not be before --from")
	}
	return from, to, nil
}

type selection struct {
	eventID    string
	workItemID string
}

func parseSelections(raw []string) ([]selection, error) {
	out := make([]selection, 0, len(raw))
	for _, s := range raw {
		ev, wi, ok := strings.Cut(s, "=")
		ev, wi = strings.TrimSpace(ev), strings.TrimSpace(wi)
		if !ok || ev == "" || wi == "" {
			return nil, fmt.Errorf("--select %q: want EVENT_UUID=WORK_ITEM_ID", s)
		}
		out = append(out, selection{eventID: ev, workItemID: wi})
	}
	return out, nil
}

func readWorkItems(path string) ([]model.WorkItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []types.WorkItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return types.WorkItems(items), nil
}

func dropEvent(events []model.Event, uuid string) []model.Event {
	out := events[:0:0]
	for _, ev := range events {
		if ev.UUID != uuid {
			out = append(out, ev)
		}
	}
	return out
}

func waitRun(ctx context.Context, svc *service.Service, id string) (service.RunStatus, error) {
	ticker := time.NewTicker(runPollInterval)
	defer ticker.Stop()
	for {
		st, _ := svc.Run(id)
		if !st.FinishedAt.IsZero() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			_ = svc.CancelRun(context.WithoutCancel(ctx), id)
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printReport(out io.Writer, r service.LinkReport, loc *time.Location) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	faint := color.New(color.FgHiBlack).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	span := func(ev model.Event) string {
		return ev.Start.In(loc).Format("Mon 01-02 15:04") + "-" + ev.End.In(loc).Format("15:04")
	}

	fmt.Fprintf(out, "%s (%d)\n", bold("Linked"), len(r.Linked))
	for _, p := range r.Linked {
		fmt.Fprintf(out, "  %s %s  %s → %s %s\n", green("✓"), span(p.Event), p.Event.Name, p.WorkItem.Label(), faint("("+string(p.Source)+")"))
	}
	if len(r.Duplicates) > 0 {
		fmt.Fprintf(out, "%s (%d)\n", bold("Duplicates"), len(r.Duplicates))
		for _, d := range r.Duplicates {
			fmt.Fprintf(out, "  %s %s  %s overlaps %s on %s\n", red("!"), span(d.Pair.Event), d.Pair.Event.Name, d.Of.Event.Name, d.Pair.WorkItem.Label())
		}
	}
	fmt.Fprintf(out, "%s (%d)\n", bold("Unlinked"), len(r.Unlinked))
	for _, ev := range r.Unlinked {
		fmt.Fprintf(out, "  %s %s  %s %s\n", yellow("?"), span(ev), ev.Name, faint(ev.UUID))
	}
	if n := len(r.Ignored) + len(r.Excluded); n > 0 {
		fmt.Fprintf(out, "%s\n", faint(fmt.Sprintf("%d ignored, %d private or cancelled", len(r.Ignored), len(r.Excluded))))
	}
}

func printRun(out io.Writer, st service.RunStatus) {
	p := st.Progress
	summary := fmt.Sprintf("registered %d/%d, %d failed, %d skipped", p.Success, p.Total, p.Error, p.Skipped)
	if p.Error > 0 {
		fmt.Fprintln(out, color.RedString(summary))
	} else {
		fmt.Fprintln(out, color.GreenString(summary))
	}
	for _, f := range st.Failures {
		fmt.Fprintf(out, "  %s %s: %s\n", color.RedString("✗"), f.Label, f.Message)
	}
	if len(st.HistoryErrors) > 0 {
		fmt.Fprintln(out, color.RedString("history not recorded for %d link(s)", len(st.HistoryErrors)))
		for _, f := range st.HistoryErrors {
			fmt.Fprintf(out, "  %s %s: %s\n", color.RedString("✗"), f.Label, f.Message)
		}
	}
}
