package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Bikxs/skafu-core/api"
	"github.com/Bikxs/skafu-core/domain"
	"github.com/Bikxs/skafu-core/eventstore"
	"github.com/Bikxs/skafu-core/faults"
	"github.com/Bikxs/skafu-core/ledger"
	"github.com/Bikxs/skafu-core/messaging"
	"github.com/Bikxs/skafu-core/metrics"
	"github.com/Bikxs/skafu-core/projections"
	"github.com/Bikxs/skafu-core/saga"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Run:   runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) {
	log.Info().Msg("Starting server")

	metrics.Init()

	db, err := openDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	esClient, err := openElasticsearch()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Elasticsearch")
	}

	errorStore := faults.NewGormStore(db, esClient, cfg.ElasticSearchPrefix)
	store := eventstore.NewGormEventStore(db)
	snapshots := openSnapshotCache()

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var publisher messaging.Publisher
	var memBus *messaging.InMemoryBus

	switch cfg.BusDriver {
	case "azure":
		azureBus, err := messaging.NewAzureBus(cfg.AzureConnStr, cfg.AzureEventsTopic)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Azure Service Bus")
		}
		defer azureBus.Close(context.Background())
		publisher = azureBus

	default:
		memBus = messaging.NewInMemoryBus(cfg.BusBufferSize, cfg.BusMaxRedeliveries)
		publisher = memBus
	}

	processor := buildProcessor(store, publisher, snapshots, errorStore)

	// With the in-memory bus the server hosts the consumers and maintenance
	// jobs too; with Azure those run in the worker process.
	if memBus != nil {
		ldg := ledger.NewGormLedger(db, cfg.LedgerStaleAfter)

		projectEngine := projections.NewEngine(consumerProjectView,
			projections.NewProjectViewProjector(db).Registry(), ldg, errorStore)
		memBus.Subscribe(projectEngine, domain.AggregateProject)

		templateEngine := projections.NewEngine(consumerTemplateView,
			projections.NewTemplateViewProjector(db).Registry(), ldg, errorStore)
		memBus.Subscribe(templateEngine, domain.AggregateTemplate)

		if esClient != nil {
			timeline := projections.NewTimelineProjector(esClient,
				projections.FormatIndex("event-timeline", cfg))
			timelineEngine := projections.NewEngine(consumerTimeline, timeline.Registry(), ldg, errorStore)
			memBus.Subscribe(timelineEngine)
		}

		onboarding := saga.NewOrchestrator(
			saga.NewProjectOnboarding(cfg.SagaStateDeadline),
			saga.NewGormStore(db), processor, errorStore,
			saga.Options{CompensationMaxRetries: cfg.CompensationMaxRetries})
		sagaEngine := projections.NewEngine(consumerSaga, onboarding.Registry(), ldg, errorStore)
		memBus.Subscribe(sagaEngine, domain.AggregateProject)

		go func() {
			if err := runMaintenance(ctx, onboarding, ldg); err != nil {
				log.Error().Err(err).Msg("Maintenance scheduler stopped")
			}
		}()
	}

	server := api.NewServer(cfg, db, store, processor, errorStore)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if memBus != nil {
		memBus.Close()
	}

	log.Info().Msg("Server exited properly")
}
