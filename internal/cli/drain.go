package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Process one batch of pending index jobs",
	Run:   runDrain,
}

func init() {
	rootCmd.AddCommand(drainCmd)
}

func runDrain(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx)
	defer app.Close()

	res, err := app.Drainer().DrainOnce(ctx)
	if err != nil {
		slog.Error("Drain failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("claimed=%d indexed=%d removed=%d failed=%d requeued=%d took=%s\n",
		res.Claimed, res.Indexed, res.Removed, res.Failed, res.Requeued, res.Duration)
}
