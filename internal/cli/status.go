package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vietddude/pushgate/internal/core/config"
	"github.com/vietddude/pushgate/internal/core/domain"
	"github.com/vietddude/pushgate/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registration counts and recent dispatches",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Println("status requires a configured database")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	endpoints := postgres.NewEndpointRepo(db)

	counts, err := endpoints.CountByPlatform(ctx)
	if err != nil {
		slog.Error("Failed to count endpoints", "error", err)
		os.Exit(1)
	}

	stale, err := endpoints.FindStale(ctx, time.Now().UTC().Add(-cfg.Sweeper.StaleAfter))
	if err != nil {
		slog.Error("Failed to find stale endpoints", "error", err)
		os.Exit(1)
	}

	platforms := make([]string, 0, len(counts))
	for platform := range counts {
		platforms = append(platforms, string(platform))
	}
	sort.Strings(platforms)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "PLATFORM\tENDPOINTS")

	total := 0
	for _, platform := range platforms {
		n := counts[domain.Platform(platform)]
		total += n
		_, _ = fmt.Fprintf(w, "%s\t%d\n", platform, n)
	}
	_, _ = fmt.Fprintf(w, "total\t%d\n", total)
	_, _ = fmt.Fprintf(w, "stale\t%d\n", len(stale))
	_ = w.Flush()

	recs, err := postgres.NewDispatchRepo(db).Recent(ctx, 10)
	if err != nil {
		slog.Error("Failed to load recent dispatches", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TIME\tTITLE\tADDRESSING\tDELIVERED\tSTATUS")

	for _, rec := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
			rec.CreatedAt.Format(time.RFC3339),
			rec.Title,
			rec.Addressing,
			rec.Delivered,
			rec.Attempted,
			rec.Status)
	}
	_ = w.Flush()
}
