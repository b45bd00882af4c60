package projections

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"

	"github.com/Bikxs/skafu-core/domain"
)

// timelineDocument is the denormalized event shape indexed for search
type timelineDocument struct {
	EventID        string    `json:"event_id"`
	AggregateID    string    `json:"aggregate_id"`
	AggregateType  string    `json:"aggregate_type"`
	EventType      string    `json:"event_type"`
	SequenceNumber int64     `json:"sequence_number"`
	OccurredAt     time.Time `json:"occurred_at"`
	CorrelationID  string    `json:"correlation_id"`
	CausationID    string    `json:"causation_id"`
	Payload        any       `json:"payload"`
}

// TimelineProjector indexes every committed event into Elasticsearch so
// operators can search the event timeline by aggregate or correlation id
type TimelineProjector struct {
	client *elasticsearch.Client
	index  string
}

// NewTimelineProjector creates a projector writing to the given index
func NewTimelineProjector(client *elasticsearch.Client, index string) *TimelineProjector {
	return &TimelineProjector{
		client: client,
		index:  index,
	}
}

// Registry returns a catch-all registry: every event type lands in the
// timeline index
func (p *TimelineProjector) Registry() *Registry {
	r := NewRegistry()
	r.Default = p.indexEvent
	return r
}

func (p *TimelineProjector) indexEvent(ctx context.Context, event domain.Event) error {
	doc := timelineDocument{
		EventID:        event.EventID,
		AggregateID:    event.AggregateID,
		AggregateType:  event.AggregateType,
		EventType:      event.EventType,
		SequenceNumber: event.SequenceNumber,
		OccurredAt:     event.OccurredAt,
		CorrelationID:  event.CorrelationID,
		CausationID:    event.CausationID,
		Payload:        event.Payload,
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal timeline document %s: %w", event.EventID, err)
	}

	req := esapi.IndexRequest{
		Index:      p.index,
		DocumentID: event.EventID,
		Body:       bytes.NewReader(docJSON),
	}

	res, err := req.Do(ctx, p.client)
	if err != nil {
		return fmt.Errorf("failed to index event %s: %w", event.EventID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index event %s: %s", event.EventID, res.String())
	}

	return nil
}
