package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"reqflow/internal/workflow"
)

type refdataView struct {
	Departments any `json:"departments"`
	Statuses    any `json:"statuses"`
	Urgencies   any `json:"urgencies"`
}

func newRefdataCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refdata",
		Short: "List departments, statuses and urgencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, engine *workflow.Engine) error {
				catalog := engine.Catalog()
				if ctx.jsonOutput() {
					return writeJSON(cmd, refdataView{
						Departments: catalog.Departments(),
						Statuses:    catalog.Statuses(),
						Urgencies:   catalog.Urgencies(),
					})
				}
				out := cmd.OutOrStdout()

				rows := make([][]string, 0)
				for _, d := range catalog.Departments() {
					rows = append(rows, []string{d.Key, d.Name, yesNo(d.Active)})
				}
				fmt.Fprintln(out, renderTable([]string{"Department", "Name", "Active"}, rows, nil))

				rows = rows[:0]
				for _, s := range catalog.Statuses() {
					rows = append(rows, []string{s.Key, s.Name, s.Color})
				}
				fmt.Fprintln(out, renderTable([]string{"Status", "Name", "Color"}, rows, nil))

				rows = rows[:0]
				for _, u := range catalog.Urgencies() {
					rows = append(rows, []string{u.Key, u.Name, strconv.Itoa(u.Priority)})
				}
				fmt.Fprintln(out, renderTable([]string{"Urgency", "Name", "Priority"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
				return nil
			})
		},
	}
}
