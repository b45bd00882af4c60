package projections

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Bikxs/skafu-core/domain"
	"github.com/Bikxs/skafu-core/models"
)

// TemplateViewProjector maintains the template catalog read model
type TemplateViewProjector struct {
	db *gorm.DB
}

// NewTemplateViewProjector creates a projector over the given database
func NewTemplateViewProjector(db *gorm.DB) *TemplateViewProjector {
	return &TemplateViewProjector{db: db}
}

// Registry returns the handlers for every template event type
func (p *TemplateViewProjector) Registry() *Registry {
	r := NewRegistry()
	for _, eventType := range []string{
		domain.TemplateRegistered,
		domain.TemplateUpdated,
		domain.TemplatePublished,
		domain.TemplateDeprecated,
	} {
		r.Register(eventType, p.apply)
	}
	return r
}

func (p *TemplateViewProjector) apply(ctx context.Context, event domain.Event) error {
	var view models.TemplateView
	err := p.db.WithContext(ctx).
		Where("aggregate_id = ?", event.AggregateID).
		First(&view).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load template view %s: %w", event.AggregateID, err)
		}
		view = models.TemplateView{AggregateID: event.AggregateID}
	}

	if view.LastSequence >= event.SequenceNumber {
		return nil
	}

	switch payload := event.Payload.(type) {
	case *domain.TemplateRegisteredPayload:
		view.Name = payload.Name
		view.SourceURL = payload.SourceURL
		view.Framework = payload.Framework
		view.Status = domain.TemplateStatusDraft

	case *domain.TemplateUpdatedPayload:
		view.Name = payload.Name
		view.SourceURL = payload.SourceURL
		view.Framework = payload.Framework

	case *domain.TemplatePublishedPayload:
		view.Version = payload.Version
		view.Status = domain.TemplateStatusPublished

	case *domain.TemplateDeprecatedPayload:
		view.Status = domain.TemplateStatusDeprecated

	default:
		return fmt.Errorf("%w: %T", domain.ErrUnknownEventType, event.Payload)
	}

	view.LastSequence = event.SequenceNumber
	view.LastEventAt = event.OccurredAt

	if err := p.db.WithContext(ctx).Save(&view).Error; err != nil {
		return fmt.Errorf("failed to save template view %s: %w", event.AggregateID, err)
	}

	return nil
}
