package projections

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Bikxs/skafu-core/domain"
	"github.com/Bikxs/skafu-core/models"
)

// ProjectViewProjector maintains the project read model from project events
type ProjectViewProjector struct {
	db *gorm.DB
}

// NewProjectViewProjector creates a projector over the given database
func NewProjectViewProjector(db *gorm.DB) *ProjectViewProjector {
	return &ProjectViewProjector{db: db}
}

// Registry returns the handlers for every project event type
func (p *ProjectViewProjector) Registry() *Registry {
	r := NewRegistry()
	for _, eventType := range []string{
		domain.ProjectCreated,
		domain.ProjectUpdated,
		domain.TemplateSelected,
		domain.TemplateSelectionCancelled,
		domain.RepositoryCreated,
		domain.RepositoryCreationFailed,
		domain.AnalysisRequested,
		domain.AnalysisCompleted,
		domain.ProjectReady,
		domain.ProjectArchived,
	} {
		r.Register(eventType, p.apply)
	}
	return r
}

// apply folds one event into the stored view. Events at or below the view's
// last applied sequence are stale replays and leave the row untouched.
func (p *ProjectViewProjector) apply(ctx context.Context, event domain.Event) error {
	var view models.ProjectView
	err := p.db.WithContext(ctx).
		Where("aggregate_id = ?", event.AggregateID).
		First(&view).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load project view %s: %w", event.AggregateID, err)
		}
		view = models.ProjectView{AggregateID: event.AggregateID}
	}

	if view.LastSequence >= event.SequenceNumber {
		return nil
	}

	switch payload := event.Payload.(type) {
	case *domain.ProjectCreatedPayload:
		view.Name = payload.Name
		view.Description = payload.Description
		view.OwnerID = payload.OwnerID
		view.Status = domain.ProjectStatusDraft

	case *domain.ProjectUpdatedPayload:
		view.Name = payload.Name
		view.Description = payload.Description

	case *domain.TemplateSelectedPayload:
		view.TemplateID = payload.TemplateID
		view.TemplateVersion = payload.TemplateVersion

	case *domain.TemplateSelectionCancelledPayload:
		view.TemplateID = ""
		view.TemplateVersion = ""

	case *domain.RepositoryCreatedPayload:
		view.RepoProvider = payload.Provider
		view.RepoURL = payload.RepoURL
		view.DefaultBranch = payload.DefaultBranch

	case *domain.RepositoryCreationFailedPayload:
		view.RepoProvider = ""
		view.RepoURL = ""
		view.DefaultBranch = ""

	case *domain.AnalysisRequestedPayload:
		view.AnalysisID = payload.AnalysisID

	case *domain.AnalysisCompletedPayload:
		view.AnalysisID = payload.AnalysisID
		view.AnalysisSummary = payload.Summary

	case *domain.ProjectReadyPayload:
		view.Status = domain.ProjectStatusReady

	case *domain.ProjectArchivedPayload:
		view.Status = domain.ProjectStatusArchived

	default:
		return fmt.Errorf("%w: %T", domain.ErrUnknownEventType, event.Payload)
	}

	view.LastSequence = event.SequenceNumber
	view.LastEventAt = event.OccurredAt

	if err := p.db.WithContext(ctx).Save(&view).Error; err != nil {
		return fmt.Errorf("failed to save project view %s: %w", event.AggregateID, err)
	}

	return nil
}
