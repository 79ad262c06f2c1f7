package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reqflow/internal/api"
	"reqflow/internal/audit"
	"reqflow/internal/store"
	"reqflow/internal/workflow"
)

func newAuditCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and append to the audit trail",
	}
	cmd.AddCommand(
		newAuditRequestCommand(ctx),
		newAuditActorCommand(ctx),
		newAuditStatsCommand(ctx),
		newAuditRecordCommand(ctx),
	)
	return cmd
}

type auditFlags struct {
	action    string
	from      string
	to        string
	limit     int
	offset    int
	ascending bool
}

func (f *auditFlags) register(cmd *cobra.Command, paging bool) {
	cmd.Flags().StringVar(&f.action, "action", "", "Only this action kind")
	cmd.Flags().StringVar(&f.from, "from", "", "At or after (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&f.to, "to", "", "At or before (YYYY-MM-DD or RFC3339)")
	if paging {
		cmd.Flags().IntVar(&f.limit, "limit", 0, "Maximum rows (default 50, max 100)")
		cmd.Flags().IntVar(&f.offset, "offset", 0, "Rows to skip")
		cmd.Flags().BoolVar(&f.ascending, "asc", false, "Oldest first")
	}
}

func (f *auditFlags) filter() (audit.Filter, error) {
	action := audit.Action(strings.TrimSpace(f.action))
	if action != "" && !action.Valid() {
		return audit.Filter{}, fmt.Errorf("%w: unknown audit action %q", workflow.ErrValidation, f.action)
	}
	from, err := parseDateFlag("from", f.from, false)
	if err != nil {
		return audit.Filter{}, err
	}
	to, err := parseDateFlag("to", f.to, true)
	if err != nil {
		return audit.Filter{}, err
	}
	return audit.Filter{
		Action:        action,
		From:          from,
		To:            to,
		Limit:         f.limit,
		Offset:        f.offset,
		Chronological: f.ascending,
	}, nil
}

func newAuditRequestCommand(ctx *commandContext) *cobra.Command {
	var af auditFlags
	cmd := &cobra.Command{
		Use:   "request <id>",
		Short: "Audit records of one request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("request", args[0])
			if err != nil {
				return err
			}
			filter, err := af.filter()
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				recs, err := engine.AuditForRequest(c, id, filter)
				if err != nil {
					return err
				}
				return printAudit(cmd, ctx, recs)
			})
		},
	}
	af.register(cmd, true)
	return cmd
}

func newAuditActorCommand(ctx *commandContext) *cobra.Command {
	var af auditFlags
	cmd := &cobra.Command{
		Use:   "actor <name>",
		Short: "Audit records written by one actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := af.filter()
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				recs, err := engine.AuditByActor(c, args[0], filter)
				if err != nil {
					return err
				}
				return printAudit(cmd, ctx, recs)
			})
		},
	}
	af.register(cmd, true)
	return cmd
}

func newAuditStatsCommand(ctx *commandContext) *cobra.Command {
	var af auditFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the audit trail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := af.filter()
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				stats, err := engine.AuditStats(c, filter)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Total records: %d\n", stats.Total)
				fmt.Fprintln(out, countRowTable("Action", stats.ByAction))
				fmt.Fprintln(out, countRowTable("Actor", stats.TopActors))
				return nil
			})
		},
	}
	af.register(cmd, false)
	return cmd
}

func newAuditRecordCommand(ctx *commandContext) *cobra.Command {
	var action, description string
	cmd := &cobra.Command{
		Use:   "record <request-id>",
		Short: "Append an audit record for an action taken outside reqflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("request", args[0])
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				rec, err := engine.RecordAction(c, audit.Entry{
					RequestID:   id,
					Actor:       ctx.actor(),
					Action:      audit.Action(strings.TrimSpace(action)),
					Description: description,
					Metadata:    map[string]any{"source": "cli"},
				})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.FromAuditRecord(rec))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s as audit record %d\n", rec.Action, rec.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", string(audit.ActionSendEmail), "Action kind (send_email, view_request or download_file)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "What happened")
	return cmd
}

func printAudit(cmd *cobra.Command, ctx *commandContext, recs []*store.AuditRecord) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, api.FromAuditRecords(recs))
	}
	if len(recs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No audit records found")
		return nil
	}
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		request := ""
		if r.RequestID != 0 {
			request = strconv.FormatInt(r.RequestID, 10)
		}
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			formatTime(r.CreatedAt),
			request,
			r.Actor,
			label(r.Action),
			truncate(r.Description, 56),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "When", "Request", "Actor", "Action", "Description"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight},
	))
	return nil
}

func countRowTable(title string, rows []store.CountRow) string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{r.Key, strconv.Itoa(r.Count)})
	}
	return renderTable([]string{title, "Records"}, out, []columnAlignment{alignLeft, alignRight})
}
