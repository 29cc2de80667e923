package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"docchat-go/pkg/events"
	"docchat-go/pkg/kafka"

	"github.com/spf13/cobra"
)

var eventsGroup string

// NewEventsCmd creates the events command, which tails the document event topic.
func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print ingestion and clear events from Kafka until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runEvents,
	}
	cmd.Flags().StringVar(&eventsGroup, "group", "docchat-cli", "Kafka consumer group id")
	return cmd
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Kafka.Brokers == "" {
		return fmt.Errorf("kafka.brokers is not configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(cmd.OutOrStdout())
	return kafka.Consume(ctx, cfg.Kafka, eventsGroup, func(_ context.Context, event events.DocumentEvent) error {
		if ownerID != "" && event.OwnerID != ownerID {
			return nil
		}
		return enc.Encode(event)
	})
}
