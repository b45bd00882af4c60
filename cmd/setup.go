package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Bikxs/skafu-core/cache"
	"github.com/Bikxs/skafu-core/commands"
	"github.com/Bikxs/skafu-core/eventstore"
	"github.com/Bikxs/skafu-core/faults"
	"github.com/Bikxs/skafu-core/ledger"
	"github.com/Bikxs/skafu-core/messaging"
	"github.com/Bikxs/skafu-core/models"
	"github.com/Bikxs/skafu-core/projections"
	"github.com/Bikxs/skafu-core/saga"
)

// Consumer identities double as Service Bus subscription names
const (
	consumerProjectView  = "project-view"
	consumerTemplateView = "template-view"
	consumerTimeline     = "event-timeline"
	consumerSaga         = "saga-project-onboarding"
)

// openDatabase connects to the write database and migrates the schema.
// TranslateError lets the event store detect unique index violations as
// gorm.ErrDuplicatedKey across drivers.
func openDatabase() (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DBSource), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying DB connection: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if cfg.EnableMigrations {
		err = db.AutoMigrate(
			&models.Event{},
			&models.IdempotencyRecord{},
			&models.SagaInstance{},
			&models.ErrorRecord{},
			&models.ProjectView{},
			&models.TemplateView{},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return db, nil
}

// openElasticsearch returns a client when search indexing is enabled, nil
// otherwise
func openElasticsearch() (*elasticsearch.Client, error) {
	if !cfg.ElasticSearchEnabled {
		return nil, nil
	}

	client, err := projections.NewElasticsearchClient(cfg)
	if err != nil {
		return nil, err
	}

	if err := projections.EnsureIndices(client, cfg); err != nil {
		return nil, err
	}

	return client, nil
}

// openSnapshotCache connects the Redis snapshot cache, degrading to the
// disabled no-op cache when Redis is unreachable
func openSnapshotCache() *cache.SnapshotCache {
	snapshots, err := cache.NewSnapshotCache(cache.Options{
		Enabled:  cfg.RedisEnabled,
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.SnapshotTTL,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize snapshot cache, continuing without snapshots")
		snapshots, _ = cache.NewSnapshotCache(cache.Options{Enabled: false})
	}
	return snapshots
}

// buildProcessor assembles the command processor over the shared stores
func buildProcessor(store eventstore.EventStore, bus messaging.Publisher, snapshots *cache.SnapshotCache, errorStore faults.Store) *commands.Processor {
	return commands.NewProcessor(store, bus, snapshots, errorStore, commands.Options{
		MaxAttempts:       cfg.CommandMaxAttempts,
		SnapshotFrequency: cfg.SnapshotFrequency,
	})
}

// runMaintenance schedules the saga timeout sweep and ledger purge until the
// context is cancelled
func runMaintenance(ctx context.Context, onboarding *saga.Orchestrator, ldg ledger.Ledger) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.SagaSweepInterval),
		gocron.NewTask(func() {
			if err := onboarding.SweepTimeouts(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to sweep saga timeouts")
			}
		}),
	)
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.LedgerPurgeInterval),
		gocron.NewTask(func() {
			cutoff := time.Now().UTC().Add(-cfg.LedgerRetention)
			purged, err := ldg.Purge(ctx, cutoff)
			if err != nil {
				log.Error().Err(err).Msg("Failed to purge idempotency ledger")
				return
			}
			if purged > 0 {
				log.Info().Int64("purged", purged).Msg("Purged completed ledger entries")
			}
		}),
	)
	if err != nil {
		return err
	}

	scheduler.Start()

	<-ctx.Done()

	return scheduler.Shutdown()
}
