package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vietddude/pushgate/internal/control"
	"github.com/vietddude/pushgate/internal/core/config"
	"github.com/vietddude/pushgate/internal/infra/storage/postgres"
	"github.com/vietddude/pushgate/internal/sweeper"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Validate stale device tokens once and remove the dead ones",
	Run:   runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Println("sweep requires a configured database")
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

	t, err := control.NewTransport(cfg.Transport)
	if err != nil {
		slog.Error("Failed to build transport", "error", err)
		os.Exit(1)
	}

	swp := sweeper.New(cfg.Sweeper, postgres.NewEndpointRepo(db), t)
	checked, removed, err := swp.Sweep(ctx)
	if err != nil {
		slog.Error("Sweep failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Checked %d stale endpoints, removed %d\n", checked, removed)
}
