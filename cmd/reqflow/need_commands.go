package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"reqflow/internal/workflow"
)

func newNeedCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "need",
		Short: "Manage analysis and warehouse needs",
	}
	cmd.AddCommand(
		newNeedCreateCommand(ctx),
		newNeedCompleteCommand(ctx),
		newNeedReopenCommand(ctx),
		newNeedUpdateCommand(ctx),
		newNeedDeleteCommand(ctx),
		newNeedListCommand(ctx),
	)
	return cmd
}

func newNeedCreateCommand(ctx *commandContext) *cobra.Command {
	var in workflow.NeedInput
	cmd := &cobra.Command{
		Use:   "create <request-id>",
		Short: "Raise a need on a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requestID, err := parseID("request", args[0])
			if err != nil {
				return err
			}
			in.Actor = ctx.actor()
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				need, err := engine.CreateNeed(c, requestID, in)
				if err != nil {
					return err
				}
				return printNeed(cmd, ctx, "Created", need)
			})
		},
	}
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "What is needed")
	cmd.Flags().StringVar(&in.AnalysisType, "analysis-type", "", "Analysis type")
	cmd.Flags().StringVar(&in.RequiredParams, "params", "", "Required parameters")
	return cmd
}

func newNeedCompleteCommand(ctx *commandContext) *cobra.Command {
	var result, observations string
	cmd := &cobra.Command{
		Use:   "complete <need-id>",
		Short: "Complete a need and send the request to Warehouse",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("need", args[0])
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				need, err := engine.CompleteNeed(c, id, result, observations, ctx.actor())
				if err != nil {
					return err
				}
				return printNeed(cmd, ctx, "Completed", need)
			})
		},
	}
	cmd.Flags().StringVar(&result, "result", "", "Result of the analysis")
	cmd.Flags().StringVar(&observations, "observations", "", "Observations")
	return cmd
}

func newNeedReopenCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reopen <need-id>",
		Short: "Reopen a completed need and send the request to Lab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("need", args[0])
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				need, err := engine.ReopenNeed(c, id, reason, ctx.actor())
				if err != nil {
					return err
				}
				return printNeed(cmd, ctx, "Reopened", need)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the need is reopened")
	return cmd
}

func newNeedUpdateCommand(ctx *commandContext) *cobra.Command {
	var description, analysisType, params, observations string
	cmd := &cobra.Command{
		Use:   "update <need-id>",
		Short: "Edit an open need",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("need", args[0])
			if err != nil {
				return err
			}
			in := workflow.NeedUpdate{Actor: ctx.actor()}
			flags := cmd.Flags()
			if flags.Changed("description") {
				in.Description = &description
			}
			if flags.Changed("analysis-type") {
				in.AnalysisType = &analysisType
			}
			if flags.Changed("params") {
				in.RequiredParams = &params
			}
			if flags.Changed("observations") {
				in.Observations = &observations
			}
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				need, err := engine.UpdateNeed(c, id, in)
				if err != nil {
					return err
				}
				return printNeed(cmd, ctx, "Updated", need)
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "New description")
	cmd.Flags().StringVar(&analysisType, "analysis-type", "", "New analysis type")
	cmd.Flags().StringVar(&params, "params", "", "New required parameters")
	cmd.Flags().StringVar(&observations, "observations", "", "New observations")
	return cmd
}

func newNeedDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <need-id>",
		Short: "Delete an open need",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("need", args[0])
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				if err := engine.DeleteNeed(c, id, ctx.actor()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted need %d\n", id)
				return nil
			})
		},
	}
}

func newNeedListCommand(ctx *commandContext) *cobra.Command {
	var requestID int64
	var completed string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List needs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			done, err := parseOptionalBool("completed", completed)
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				needs, err := engine.ListNeeds(c, workflow.NeedFilter{RequestID: requestID, Completed: done, Limit: limit})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, needs)
				}
				if len(needs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No needs found")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), needTable(needs))
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&requestID, "request", 0, "Only needs of this request")
	cmd.Flags().StringVar(&completed, "completed", "", "Filter by completion (true or false)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows")
	return cmd
}

func printNeed(cmd *cobra.Command, ctx *commandContext, verb string, need *workflow.Need) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, need)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s need %d on request %d\n", verb, need.ID, need.RequestID)
	return nil
}

func needTable(needs []workflow.Need) string {
	rows := make([][]string, 0, len(needs))
	for _, n := range needs {
		rows = append(rows, []string{
			strconv.FormatInt(n.ID, 10),
			strconv.FormatInt(n.RequestID, 10),
			truncate(n.Description, 40),
			n.AnalysisType,
			yesNo(n.Completed),
			truncate(n.Result, 24),
			formatTime(n.CreatedAt),
			formatTimePtr(n.CompletedAt),
		})
	}
	return renderTable(
		[]string{"ID", "Request", "Description", "Analysis", "Done", "Result", "Created", "Completed"},
		rows,
		[]columnAlignment{alignRight, alignRight},
	)
}
