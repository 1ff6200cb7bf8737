package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var syncCDNCmd = &cobra.Command{
	Use:   "sync-cdn TARGET_ID...",
	Short: "Republish the artifacts of the latest valid schema version of targets",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetIDs := make([]uuid.UUID, 0, len(args))
		for _, arg := range args {
			targetID, err := uuid.Parse(arg)
			if err != nil {
				return fmt.Errorf("invalid target id %q: %w", arg, err)
			}
			targetIDs = append(targetIDs, targetID)
		}

		a, err := newApp(cmd.Context(), prometheus.NewRegistry())
		if err != nil {
			return err
		}
		defer a.close()

		for _, targetID := range targetIDs {
			result, err := a.registry.SyncCDN(cmd.Context(), targetID)
			if err != nil {
				return fmt.Errorf("error syncing target %s: %w", targetID, err)
			}
			if result.Failure != nil {
				a.log.Info("skipping target", "target", targetID, "reason", result.Failure.Message)
				continue
			}
			a.log.Info("synced target", "target", targetID, "version", result.Version.ID)
		}
		return nil
	},
}
