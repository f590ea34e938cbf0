package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show component health and index queue depth",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx)
	defer app.Close()

	report := app.Health(ctx)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "COMPONENT\tSTATUS\tERROR")
	fmt.Fprintln(w, "---------\t------\t-----")

	names := make([]string, 0, len(report.Components))
	for name := range report.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := report.Components[name]
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, c.Status, c.Error)
	}
	fmt.Fprintf(w, "queue\t%s\tpending=%d processing=%d failed=%d\n",
		report.Queue.Status, report.Queue.Pending, report.Queue.Processing, report.Queue.Failed)
	_ = w.Flush()

	fmt.Printf("\nSystem status: %s\n", report.SystemStatus)
}
