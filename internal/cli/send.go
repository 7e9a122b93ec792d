package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vietddude/pushgate/internal/control"
	"github.com/vietddude/pushgate/internal/core/config"
	"github.com/vietddude/pushgate/internal/core/domain"
	"github.com/vietddude/pushgate/internal/dispatch"
	"github.com/vietddude/pushgate/internal/infra/storage"
	"github.com/vietddude/pushgate/internal/infra/storage/memory"
	"github.com/vietddude/pushgate/internal/infra/storage/postgres"
)

var (
	sendToken     string
	sendUser      string
	sendUsers     []string
	sendBroadcast bool
	sendTitle     string
	sendBody      string
	sendImage     string
	sendSound     string
	sendClick     string
	sendData      map[string]string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one notification and print the delivery summary",
	Run:   runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendToken, "token", "", "send to one raw device token")
	sendCmd.Flags().StringVar(&sendUser, "user", "", "send to every device of one user")
	sendCmd.Flags().StringSliceVar(&sendUsers, "users", nil, "send to every device of the listed users")
	sendCmd.Flags().BoolVar(&sendBroadcast, "broadcast", false, "send to every registered device")
	sendCmd.Flags().StringVar(&sendTitle, "title", "", "notification title")
	sendCmd.Flags().StringVar(&sendBody, "body", "", "notification body")
	sendCmd.Flags().StringVar(&sendImage, "image", "", "image URL for a rich notification")
	sendCmd.Flags().StringVar(&sendSound, "sound", "", "notification sound")
	sendCmd.Flags().StringVar(&sendClick, "click-action", "", "action to open on tap")
	sendCmd.Flags().StringToStringVar(&sendData, "data", nil, "data payload entries (key=value)")
	rootCmd.AddCommand(sendCmd)
}

// sendAddressing builds the target selection from flags. Exactly one
// addressing mode must be given.
func sendAddressing() (domain.Addressing, error) {
	modes := 0
	if sendToken != "" {
		modes++
	}
	if sendUser != "" {
		modes++
	}
	if len(sendUsers) > 0 {
		modes++
	}
	if sendBroadcast {
		modes++
	}
	if modes != 1 {
		return domain.Addressing{}, errors.New("specify exactly one of --token, --user, --users, --broadcast")
	}

	switch {
	case sendToken != "":
		return domain.ToToken(sendToken), nil
	case sendUser != "":
		return domain.ToUser(sendUser), nil
	case len(sendUsers) > 0:
		return domain.ToUsers(sendUsers...), nil
	default:
		return domain.ToEveryone(), nil
	}
}

func runSend(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	addr, err := sendAddressing()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var endpoints storage.EndpointStore
	var dispatchLog storage.DispatchLogStore
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = db.Close()
		}()
		endpoints = postgres.NewEndpointRepo(db)
		dispatchLog = postgres.NewDispatchRepo(db)
	} else {
		// Without a database only --token sends reach anything; the
		// dispatch log would evaporate with the process, so skip it.
		endpoints = memory.NewEndpointRepo(memory.NewMemoryStorage())
	}

	t, err := control.NewTransport(cfg.Transport)
	if err != nil {
		slog.Error("Failed to build transport", "error", err)
		os.Exit(1)
	}

	n := domain.NewNotification(sendTitle, sendBody, addr)
	n.Data = sendData
	n.ImageURL = sendImage
	n.Sound = sendSound
	n.ClickAction = sendClick

	engine := dispatch.NewEngine(endpoints, t, cfg.Dispatch)
	res, err := engine.Dispatch(ctx, n)
	if res != nil && dispatchLog != nil {
		if recErr := dispatchLog.Record(ctx, domain.NewDispatchRecord(n, res)); recErr != nil {
			slog.Warn("Failed to record dispatch", "error", recErr)
		}
	}
	if err != nil {
		slog.Error("Dispatch failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Notification %s %s (failed: %d, invalid: %d)\n",
		n.ID, res.Summary(), res.Failed, len(res.InvalidEndpoints))
}
