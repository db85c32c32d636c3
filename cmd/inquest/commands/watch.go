package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"inquest/internal/config"
	"inquest/internal/printer"
	"inquest/pkg/blackboard"
)

var watchCmd = &cobra.Command{
	Use:   "watch <investigation-id>",
	Short: "Stream live finding events for an investigation",
	Long: `Watch subscribes to an investigation's finding-events channel and prints
every new finding as it is written. Redis Pub/Sub is at-most-once, so this
is a live view, not a durable record; use the exported document for that.

Press Ctrl+C to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	investigationID := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		return printer.Error("Invalid configuration", err.Error(), nil)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, err := blackboard.SubscribeFindingEvents(ctx, rdb, investigationID)
	if err != nil {
		return err
	}
	defer sub.Close()

	printer.Header("Watching findings for %s (Ctrl+C to stop)\n", investigationID)

	for {
		select {
		case <-ctx.Done():
			return nil

		case finding, ok := <-sub.Events():
			if !ok {
				return nil
			}
			printer.Info("[%s] %-12s %-10s %s\n",
				finding.Timestamp.Format("15:04:05"),
				finding.Area,
				finding.Confidence,
				finding.Producer)

		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			printer.Warning("subscription error: %v\n", err)
		}
	}
}
