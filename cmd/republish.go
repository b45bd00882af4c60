package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Bikxs/skafu-core/eventstore"
	"github.com/Bikxs/skafu-core/messaging"
)

var (
	republishAfterID   uint
	republishBatchSize int
)

var republishCmd = &cobra.Command{
	Use:   "republish",
	Short: "Republish committed events to the event bus",
	Long:  `Replay the event log onto the bus in commit order to rebuild read models. The idempotency ledger keeps already processed events from being applied twice.`,
	RunE:  runRepublish,
}

func init() {
	republishCmd.Flags().UintVar(&republishAfterID, "after", 0, "republish events after this insert id")
	republishCmd.Flags().IntVar(&republishBatchSize, "batch-size", 500, "events fetched per batch")
	rootCmd.AddCommand(republishCmd)
}

func runRepublish(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}

	store := eventstore.NewGormEventStore(db)

	bus, err := messaging.NewAzureBus(cfg.AzureConnStr, cfg.AzureEventsTopic)
	if err != nil {
		return err
	}
	defer bus.Close(context.Background())

	ctx := context.Background()
	afterID := republishAfterID
	total := 0

	for {
		rows, err := store.ReadBatch(ctx, afterID, republishBatchSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			event, err := eventstore.ToDomainEvent(row)
			if err != nil {
				return err
			}
			if err := bus.Publish(ctx, event); err != nil {
				return err
			}
			afterID = row.ID
			total++
		}

		log.Info().
			Uint("afterId", afterID).
			Int("total", total).
			Msg("Republished event batch")
	}

	log.Info().Int("total", total).Msg("Republish complete")
	return nil
}
