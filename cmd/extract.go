package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

// extractOutput is what the extract command prints.
type extractOutput struct {
	ID     string           `json:"id"`
	Site   string           `json:"site,omitempty"`
	Status datasheet.Status `json:"status"`
	Result json.RawMessage  `json:"result"`
}

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <url>",
		Short: "Renders the datasheet for one URL and prints the outcome",
		Long: `Runs the same pipeline the service runs for a single URL, without a
webhook, and prints the final record as JSON. Generated files land in the
configured output directory.`,
		Args: cobra.ExactArgs(1),
		RunE: runExtractCommand,
	}
}

func runExtractCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	record, err := appInstance.ExtractOnce(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	appInstance.Logger().Info("extract finished",
		zap.String("id", record.InternalID),
		zap.String("status", string(record.Status)),
	)

	out, err := json.MarshalIndent(extractOutput{
		ID:     record.InternalID,
		Site:   record.Site,
		Status: record.Status,
		Result: record.Result,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if record.Status != datasheet.StatusCompleted {
		// PersistentPostRun is skipped on error.
		_ = appInstance.Close()
		return fmt.Errorf("extraction %s", record.Status)
	}
	return nil
}
