package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reqflow/internal/daemon"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a test notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sent, message, err := daemon.SendTestNotification(cmd.Context(), cfg)
			if message != "" {
				fmt.Fprintln(cmd.OutOrStdout(), message)
			}
			if err != nil {
				return err
			}
			if !sent && message == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Notification not sent")
			}
			return nil
		},
	})
	return cmd
}
