package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reqflow/internal/history"
	"reqflow/internal/workflow"
)

func newRequestCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "request",
		Aliases: []string{"req"},
		Short:   "Create, inspect and move material requests",
	}
	cmd.AddCommand(
		newRequestCreateCommand(ctx),
		newRequestShowCommand(ctx),
		newRequestListCommand(ctx),
		newRequestRouteCommand(ctx),
		newRequestTransitionCommand(ctx),
		newRequestMoveCommand(ctx, "finalize", "Finalize a request in its current department", (*workflow.Engine).Finalize),
		newRequestMoveCommand(ctx, "return", "Return a request from Lab to Warehouse", (*workflow.Engine).ReturnToWarehouse),
		newRequestMoveCommand(ctx, "finalize-lab", "Finalize a request that is in Lab", (*workflow.Engine).FinalizeFromLab),
	)
	return cmd
}

func newRequestCreateCommand(ctx *commandContext) *cobra.Command {
	var in workflow.CreateInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Actor = ctx.actor()
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				req, err := engine.CreateRequest(c, in)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, req)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s (id %d) in %s\n", req.Number, req.ID, label(req.Department))
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&in.Requester, "requester", "", "Person requesting the material")
	flags.StringVar(&in.MaterialName, "material", "", "Material name")
	flags.StringVar(&in.Lot, "lot", "", "Lot identifier")
	flags.StringVar(&in.Supplier, "supplier", "", "Supplier")
	flags.StringVar(&in.ArticleCode, "article", "", "Article code")
	flags.StringVar(&in.Comments, "comments", "", "Free-form comments")
	flags.StringVar(&in.Destination, "destination", "", "Destination department key")
	flags.StringVar(&in.Urgency, "urgency", "", "Urgency key")
	return cmd
}

func newRequestShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|number>",
		Short: "Show a request with its needs and timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				var (
					detail *workflow.RequestDetail
					err    error
				)
				if id, convErr := strconv.ParseInt(args[0], 10, 64); convErr == nil {
					detail, err = engine.GetRequest(c, id, ctx.actor())
				} else {
					detail, err = engine.GetRequestByNumber(c, strings.TrimSpace(args[0]), ctx.actor())
				}
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, detail)
				}
				printRequestDetail(cmd, detail)
				return nil
			})
		},
	}
}

func printRequestDetail(cmd *cobra.Command, d *workflow.RequestDetail) {
	out := cmd.OutOrStdout()
	rows := [][]string{
		{"Number", d.Number},
		{"Material", d.MaterialName},
		{"Lot", d.Lot},
		{"Supplier", d.Supplier},
		{"Article", d.ArticleCode},
		{"Requester", d.Requester},
		{"Destination", label(d.Destination)},
		{"Department", label(d.Department)},
		{"Status", label(d.Status)},
		{"Urgency", label(d.Urgency)},
		{"Finalized", yesNo(d.Finalized)},
		{"Created", formatTime(d.CreatedAt) + " by " + d.CreatedBy},
	}
	if d.FinalizedAt != nil {
		rows = append(rows, []string{"Finalized at", formatTimePtr(d.FinalizedAt)})
	}
	if d.Comments != "" {
		rows = append(rows, []string{"Comments", d.Comments})
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))

	if len(d.Needs) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Needs")
		fmt.Fprintln(out, needTable(d.Needs))
	}
	if len(d.Timeline) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Timeline")
		fmt.Fprintln(out, timelineTable(d.Timeline))
	}
}

type listFlags struct {
	department   string
	related      string
	status       string
	urgency      string
	search       string
	finalized    string
	from         string
	to           string
	withNeeds    bool
	withoutNeeds bool
	limit        int
	offset       int
}

func (f *listFlags) register(cmd *cobra.Command, paging bool) {
	flags := cmd.Flags()
	flags.StringVar(&f.department, "department", "", "Current department key")
	flags.StringVar(&f.related, "related", "", "Department the request is at, is bound for, or passed through")
	flags.StringVar(&f.status, "status", "", "Status key")
	flags.StringVar(&f.urgency, "urgency", "", "Urgency key")
	flags.StringVar(&f.search, "search", "", "Match number, material, lot, supplier, article or requester")
	flags.StringVar(&f.finalized, "finalized", "", "Filter by finalization (true or false)")
	flags.StringVar(&f.from, "from", "", "Created at or after (YYYY-MM-DD or RFC3339)")
	flags.StringVar(&f.to, "to", "", "Created at or before (YYYY-MM-DD or RFC3339)")
	flags.BoolVar(&f.withNeeds, "with-needs", false, "Only requests that have needs")
	flags.BoolVar(&f.withoutNeeds, "without-needs", false, "Only requests without needs")
	if paging {
		flags.IntVar(&f.limit, "limit", 0, "Maximum rows (default 50, max 100)")
		flags.IntVar(&f.offset, "offset", 0, "Rows to skip")
	}
}

func (f *listFlags) filter() (workflow.ListFilter, error) {
	finalized, err := parseOptionalBool("finalized", f.finalized)
	if err != nil {
		return workflow.ListFilter{}, err
	}
	from, err := parseDateFlag("from", f.from, false)
	if err != nil {
		return workflow.ListFilter{}, err
	}
	to, err := parseDateFlag("to", f.to, true)
	if err != nil {
		return workflow.ListFilter{}, err
	}
	return workflow.ListFilter{
		Department:        f.department,
		RelatedDepartment: f.related,
		Status:            f.status,
		Urgency:           f.urgency,
		Finalized:         finalized,
		CreatedFrom:       from,
		CreatedTo:         to,
		Search:            f.search,
		WithNeeds:         f.withNeeds,
		WithoutNeeds:      f.withoutNeeds,
		Limit:             f.limit,
		Offset:            f.offset,
	}, nil
}

// parseDateFlag accepts RFC3339 or a plain date. A plain date used as an
// upper bound covers the whole day.
func parseDateFlag(name, value string, endOfDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: --%s must be YYYY-MM-DD or RFC3339", workflow.ErrValidation, name)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func newRequestListCommand(ctx *commandContext) *cobra.Command {
	var lf listFlags
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List requests, most urgent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := lf.filter()
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				reqs, err := engine.ListRequests(c, filter)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, reqs)
				}
				if len(reqs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No requests found")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), requestTable(reqs))
				return nil
			})
		},
	}
	lf.register(cmd, true)
	return cmd
}

func requestTable(reqs []workflow.Request) string {
	rows := make([][]string, 0, len(reqs))
	for _, r := range reqs {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.Number,
			truncate(r.MaterialName, 32),
			r.Lot,
			label(r.Department),
			label(r.Status),
			label(r.Urgency),
			formatTime(r.CreatedAt),
		})
	}
	return renderTable(
		[]string{"ID", "Number", "Material", "Lot", "Department", "Status", "Urgency", "Created"},
		rows,
		[]columnAlignment{alignRight},
	)
}

func newRequestRouteCommand(ctx *commandContext) *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "route <id> <department>",
		Short: "Move a request to another department following the routing rules",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("request", args[0])
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				req, err := engine.RouteToDepartment(c, id, args[1], comment, ctx.actor())
				if err != nil {
					return err
				}
				return printMoved(cmd, ctx, req)
			})
		},
	}
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "Comment recorded in history")
	return cmd
}

func newRequestTransitionCommand(ctx *commandContext) *cobra.Command {
	var in workflow.TransitionInput
	cmd := &cobra.Command{
		Use:   "transition <id>",
		Short: "Set status and optionally department",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("request", args[0])
			if err != nil {
				return err
			}
			in.Actor = ctx.actor()
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				req, err := engine.TransitionState(c, id, in)
				if err != nil {
					return err
				}
				return printMoved(cmd, ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&in.Status, "status", "", "Target status key")
	cmd.Flags().StringVar(&in.Department, "department", "", "Target department key (defaults to current)")
	cmd.Flags().StringVarP(&in.Comment, "comment", "m", "", "Comment recorded in history")
	return cmd
}

type moveFunc func(*workflow.Engine, context.Context, int64, string, string) (*workflow.Request, error)

func newRequestMoveCommand(ctx *commandContext, use, short string, fn moveFunc) *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("request", args[0])
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				req, err := fn(engine, c, id, comment, ctx.actor())
				if err != nil {
					return err
				}
				return printMoved(cmd, ctx, req)
			})
		},
	}
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "Comment recorded in history")
	return cmd
}

func printMoved(cmd *cobra.Command, ctx *commandContext, req *workflow.Request) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, req)
	}
	state := fmt.Sprintf("%s / %s", label(req.Department), label(req.Status))
	if req.Finalized {
		state += " (finalized)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", req.Number, state)
	return nil
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var reverse bool
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the movement and need timeline of a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("request", args[0])
			if err != nil {
				return err
			}
			order := history.Chronological
			if reverse {
				order = history.Reverse
			}
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				items, err := engine.Timeline(c, id, order)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, items)
				}
				fmt.Fprintln(cmd.OutOrStdout(), timelineTable(items))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reverse, "reverse", false, "Newest first")
	return cmd
}

func timelineTable(items []history.Item) string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		change := ""
		switch {
		case it.FromDept != "" || it.ToDept != "":
			change = fmt.Sprintf("%s/%s -> %s/%s", label(it.FromDept), label(it.FromStatus), label(it.ToDept), label(it.ToStatus))
			if it.FromDept == "" {
				change = fmt.Sprintf("%s/%s", label(it.ToDept), label(it.ToStatus))
			}
		case it.NeedID != 0:
			change = fmt.Sprintf("need #%d", it.NeedID)
		}
		rows = append(rows, []string{
			formatTime(it.At),
			label(string(it.Kind)),
			change,
			truncate(it.Comment, 48),
			it.Actor,
		})
	}
	return renderTable([]string{"When", "Event", "Change", "Comment", "Actor"}, rows, nil)
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var lf listFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize requests by status and department",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := lf.filter()
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				stats, err := engine.Stats(c, filter)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(
					[]string{"Total", "Pending", "In Process", "Finalized"},
					[][]string{{
						strconv.Itoa(stats.Total),
						strconv.Itoa(stats.Pending),
						strconv.Itoa(stats.InProcess),
						strconv.Itoa(stats.Finalized),
					}},
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
				))
				catalog := engine.Catalog()
				statusKeys := make([]string, 0, len(catalog.Statuses()))
				for _, s := range catalog.Statuses() {
					statusKeys = append(statusKeys, s.Key)
				}
				deptKeys := make([]string, 0, len(catalog.Departments()))
				for _, d := range catalog.Departments() {
					deptKeys = append(deptKeys, d.Key)
				}
				fmt.Fprintln(out, countTable("Status", stats.ByStatus, statusKeys))
				fmt.Fprintln(out, countTable("Department", stats.ByDepartment, deptKeys))
				return nil
			})
		},
	}
	lf.register(cmd, false)
	return cmd
}

// countTable lists counts in catalog order, skipping empty buckets.
func countTable(title string, counts map[string]int, order []string) string {
	rows := make([][]string, 0, len(counts))
	for _, key := range order {
		if n := counts[key]; n > 0 {
			rows = append(rows, []string{label(key), strconv.Itoa(n)})
		}
	}
	return renderTable([]string{title, "Requests"}, rows, []columnAlignment{alignLeft, alignRight})
}
