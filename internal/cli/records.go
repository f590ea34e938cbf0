package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/vietddude/erpsync/internal/core/domain"
	"github.com/vietddude/erpsync/internal/infra/storage"
)

var recordID string

var putCmd = &cobra.Command{
	Use:   "put <entity> <json-payload>",
	Short: "Create or update a record and queue it for indexing",
	Args:  cobra.ExactArgs(2),
	Run:   runPut,
}

var getCmd = &cobra.Command{
	Use:   "get <entity> <id>",
	Short: "Print a stored record",
	Args:  cobra.ExactArgs(2),
	Run:   runGet,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <entity> <id>",
	Short: "Delete a record and queue its removal from the index",
	Args:  cobra.ExactArgs(2),
	Run:   runDelete,
}

var searchCmd = &cobra.Command{
	Use:   "search <entity> <query>",
	Short: "Search indexed records of an entity",
	Args:  cobra.ExactArgs(2),
	Run:   runSearch,
}

func init() {
	putCmd.Flags().StringVar(&recordID, "id", "", "record id (generated when empty)")
	rootCmd.AddCommand(putCmd, getCmd, deleteCmd, searchCmd)
}

func runPut(cmd *cobra.Command, args []string) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(args[1]), &payload); err != nil {
		fmt.Fprintf(os.Stderr, "invalid payload: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	app := openApp(ctx)
	defer app.Close()

	rec := &domain.Record{ID: recordID, Entity: args[0], Payload: payload}
	if err := app.Mutations().Put(ctx, rec); err != nil {
		slog.Error("Put failed", "entity", args[0], "error", err)
		os.Exit(1)
	}
	printJSON(rec)
}

func runGet(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx)
	defer app.Close()

	rec, err := app.Mutations().Get(ctx, args[0], args[1])
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "%s %s not found\n", args[0], args[1])
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Get failed", "entity", args[0], "id", args[1], "error", err)
		os.Exit(1)
	}
	printJSON(rec)
}

func runDelete(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx)
	defer app.Close()

	if err := app.Mutations().Delete(ctx, args[0], args[1]); err != nil {
		slog.Error("Delete failed", "entity", args[0], "id", args[1], "error", err)
		os.Exit(1)
	}
	fmt.Printf("deleted %s %s\n", args[0], args[1])
}

func runSearch(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx)
	defer app.Close()

	recs, err := app.Index().Search(ctx, args[0], args[1])
	if err != nil {
		slog.Error("Search failed", "entity", args[0], "error", err)
		os.Exit(1)
	}
	printJSON(recs)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
