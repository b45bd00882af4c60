package faults

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/Bikxs/skafu-core/models"
)

// ErrorRecordsIndex is the Elasticsearch index for error records
const ErrorRecordsIndex = "error-records"

// GormStore persists error records in Postgres and, when a client is
// configured, mirrors them into Elasticsearch for window queries. Both writes
// are best-effort: on failure the record is emitted to the process log so the
// channel itself can never fail a caller.
type GormStore struct {
	db            *gorm.DB
	elasticClient *elasticsearch.Client
	indexName     string
}

// NewGormStore creates an error record store. elasticClient and indexPrefix
// are optional.
func NewGormStore(db *gorm.DB, elasticClient *elasticsearch.Client, indexPrefix string) *GormStore {
	indexName := ErrorRecordsIndex
	if indexPrefix != "" {
		indexName = indexPrefix + "-" + ErrorRecordsIndex
	}

	return &GormStore{
		db:            db,
		elasticClient: elasticClient,
		indexName:     indexName,
	}
}

// Record persists an error record, falling back to the process log
func (s *GormStore) Record(ctx context.Context, rec ErrorRecord) {
	if rec.ErrorID == "" || rec.OccurredAt.IsZero() {
		filled := NewRecord(rec.SourceComponent, rec.CorrelationID, rec.Code, rec.Message, rec.Retryable)
		if rec.ErrorID == "" {
			rec.ErrorID = filled.ErrorID
		}
		if rec.OccurredAt.IsZero() {
			rec.OccurredAt = filled.OccurredAt
		}
	}
	if rec.Severity == "" {
		rec.Severity = SeverityError
	}

	var contextJSON []byte
	if len(rec.Context) > 0 {
		var err error
		if contextJSON, err = json.Marshal(rec.Context); err != nil {
			log.Error().Err(err).Str("errorID", rec.ErrorID).Msg("Failed to marshal error record context")
		}
	}

	row := models.ErrorRecord{
		ErrorID:         rec.ErrorID,
		CorrelationID:   rec.CorrelationID,
		SourceComponent: rec.SourceComponent,
		Severity:        rec.Severity,
		Code:            rec.Code,
		Message:         rec.Message,
		Context:         contextJSON,
		Retryable:       rec.Retryable,
		OccurredAt:      rec.OccurredAt,
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		log.Error().
			Err(err).
			Str("correlationID", rec.CorrelationID).
			Str("code", rec.Code).
			Str("message", rec.Message).
			Msg("Failed to persist error record, falling back to log")
		return
	}

	s.index(ctx, rec)
}

// index mirrors the record into Elasticsearch, best-effort
func (s *GormStore) index(ctx context.Context, rec ErrorRecord) {
	if s.elasticClient == nil {
		return
	}

	doc, err := json.Marshal(rec)
	if err != nil {
		log.Error().Err(err).Str("errorID", rec.ErrorID).Msg("Failed to marshal error record for indexing")
		return
	}

	res, err := s.elasticClient.Index(
		s.indexName,
		bytes.NewReader(doc),
		s.elasticClient.Index.WithDocumentID(rec.ErrorID),
		s.elasticClient.Index.WithContext(ctx),
	)
	if err != nil {
		log.Error().Err(err).Str("errorID", rec.ErrorID).Msg("Failed to index error record")
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Error().Str("errorID", rec.ErrorID).Str("response", res.String()).Msg("Elasticsearch rejected error record")
	}
}

// QueryByCorrelation returns all error records for a correlation id
func (s *GormStore) QueryByCorrelation(ctx context.Context, correlationID string) ([]ErrorRecord, error) {
	var rows []models.ErrorRecord
	if err := s.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		Order("occurred_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	return toRecords(rows)
}

// QueryByWindow returns error records in [start, end) matching the filter
func (s *GormStore) QueryByWindow(ctx context.Context, start, end time.Time, filter Filter) ([]ErrorRecord, error) {
	tx := s.db.WithContext(ctx).
		Where("occurred_at >= ? AND occurred_at < ?", start, end)

	if filter.SourceComponent != "" {
		tx = tx.Where("source_component = ?", filter.SourceComponent)
	}
	if filter.Severity != "" {
		tx = tx.Where("severity = ?", filter.Severity)
	}
	if filter.Code != "" {
		tx = tx.Where("code = ?", filter.Code)
	}
	if filter.Retryable != nil {
		tx = tx.Where("retryable = ?", *filter.Retryable)
	}

	var rows []models.ErrorRecord
	if err := tx.Order("occurred_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	return toRecords(rows)
}

func toRecords(rows []models.ErrorRecord) ([]ErrorRecord, error) {
	records := make([]ErrorRecord, len(rows))
	for i, row := range rows {
		var recContext map[string]string
		if len(row.Context) > 0 {
			if err := json.Unmarshal(row.Context, &recContext); err != nil {
				log.Warn().Err(err).Str("errorID", row.ErrorID).Msg("Failed to unmarshal error record context")
			}
		}

		records[i] = ErrorRecord{
			ErrorID:         row.ErrorID,
			CorrelationID:   row.CorrelationID,
			SourceComponent: row.SourceComponent,
			Severity:        row.Severity,
			Code:            row.Code,
			Message:         row.Message,
			Context:         recContext,
			OccurredAt:      row.OccurredAt,
			Retryable:       row.Retryable,
		}
	}

	return records, nil
}
