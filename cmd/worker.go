package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Bikxs/skafu-core/eventstore"
	"github.com/Bikxs/skafu-core/faults"
	"github.com/Bikxs/skafu-core/ledger"
	"github.com/Bikxs/skafu-core/messaging"
	"github.com/Bikxs/skafu-core/metrics"
	"github.com/Bikxs/skafu-core/projections"
	"github.com/Bikxs/skafu-core/saga"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker to run projections, sagas and maintenance jobs off the Azure Service Bus event topic`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	log.Info().Msg("Starting worker")

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	db, err := openDatabase()
	if err != nil {
		return err
	}

	esClient, err := openElasticsearch()
	if err != nil {
		return err
	}

	errorStore := faults.NewGormStore(db, esClient, cfg.ElasticSearchPrefix)
	store := eventstore.NewGormEventStore(db)
	snapshots := openSnapshotCache()
	ldg := ledger.NewGormLedger(db, cfg.LedgerStaleAfter)

	bus, err := messaging.NewAzureBus(cfg.AzureConnStr, cfg.AzureEventsTopic)
	if err != nil {
		return err
	}
	defer bus.Close(context.Background())

	// Saga follow-up commands run through the same processor the API uses,
	// appending to the shared event log.
	processor := buildProcessor(store, bus, snapshots, errorStore)

	engines := []*projections.Engine{
		projections.NewEngine(consumerProjectView,
			projections.NewProjectViewProjector(db).Registry(), ldg, errorStore),
		projections.NewEngine(consumerTemplateView,
			projections.NewTemplateViewProjector(db).Registry(), ldg, errorStore),
	}

	if esClient != nil {
		timeline := projections.NewTimelineProjector(esClient,
			projections.FormatIndex("event-timeline", cfg))
		engines = append(engines,
			projections.NewEngine(consumerTimeline, timeline.Registry(), ldg, errorStore))
	}

	onboarding := saga.NewOrchestrator(
		saga.NewProjectOnboarding(cfg.SagaStateDeadline),
		saga.NewGormStore(db), processor, errorStore,
		saga.Options{CompensationMaxRetries: cfg.CompensationMaxRetries})
	engines = append(engines,
		projections.NewEngine(consumerSaga, onboarding.Registry(), ldg, errorStore))

	for _, engine := range engines {
		engine := engine
		g.Go(func() error {
			log.Info().Str("consumer", engine.ConsumerID()).Msg("Starting event subscription")
			return bus.StartConsumer(ctx, engine.ConsumerID(), engine)
		})
	}

	// Commands submitted asynchronously through the command queue
	commandConsumer, err := messaging.NewCommandQueueConsumer(cfg.AzureConnStr, cfg.AzureCommandsQueueName, processor)
	if err != nil {
		return err
	}
	g.Go(func() error {
		log.Info().Str("queue", cfg.AzureCommandsQueueName).Msg("Starting command queue consumer")
		return commandConsumer.Start(ctx)
	})

	g.Go(func() error {
		log.Info().Msg("Starting maintenance scheduler")
		return runMaintenance(ctx, onboarding, ldg)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
