package commands

import (
	"encoding/json"
	"fmt"

	"github.com/Bikxs/skafu-core/domain"
	"github.com/Bikxs/skafu-core/utils"
)

func unmarshalState(data []byte, state interface{}) error {
	return json.Unmarshal(data, state)
}

// decodeCommandPayload unmarshals and structurally validates a command
// payload before any business rule runs
func decodeCommandPayload(cmd domain.Command, target interface{}) error {
	if len(cmd.Payload) > 0 {
		if err := json.Unmarshal(cmd.Payload, target); err != nil {
			return &domain.ValidationError{Field: "payload", Reason: fmt.Sprintf("malformed JSON: %v", err)}
		}
	}

	if err := utils.ValidateStruct(target); err != nil {
		field, reason := utils.FirstInvalidField(err)
		if field == "" {
			return &domain.ValidationError{Field: "payload", Reason: err.Error()}
		}
		return &domain.ValidationError{Field: field, Reason: reason}
	}

	return nil
}

// Command payloads with structural validation tags

type CreateProjectPayload struct {
	Name        string `json:"name" validate:"required,min=1,max=120"`
	Description string `json:"description" validate:"max=2000"`
	OwnerID     string `json:"owner_id" validate:"required"`
}

type UpdateProjectPayload struct {
	Name        string `json:"name" validate:"required,min=1,max=120"`
	Description string `json:"description" validate:"max=2000"`
}

type SelectTemplatePayload struct {
	TemplateID      string `json:"template_id" validate:"required"`
	TemplateVersion string `json:"template_version" validate:"required"`
}

type CancelTemplateSelectionPayload struct {
	Reason string `json:"reason" validate:"max=500"`
}

type AttachRepositoryPayload struct {
	Provider      string `json:"provider" validate:"required"`
	RepoURL       string `json:"repo_url" validate:"required,url"`
	DefaultBranch string `json:"default_branch" validate:"required"`
}

type FailRepositoryPayload struct {
	Provider string `json:"provider" validate:"required"`
	Reason   string `json:"reason" validate:"required,max=500"`
}

type RequestAnalysisPayload struct {
	AnalysisID string `json:"analysis_id" validate:"required"`
	Model      string `json:"model" validate:"required"`
}

type CompleteAnalysisPayload struct {
	AnalysisID string  `json:"analysis_id" validate:"required"`
	Summary    string  `json:"summary" validate:"required"`
	Score      float64 `json:"score" validate:"gte=0,lte=1"`
}

type MarkProjectReadyPayload struct {
	Notes string `json:"notes" validate:"max=500"`
}

type ArchiveProjectPayload struct {
	Reason string `json:"reason" validate:"max=500"`
}

// decideProject computes the events a command produces against current
// project state. Pure: no side effects here.
func decideProject(agg *domain.ProjectAggregate, cmd domain.Command) ([]staged, error) {
	switch cmd.CommandType {
	case domain.CreateProject:
		var payload CreateProjectPayload
		if err := decodeCommandPayload(cmd, &payload); err != nil {
			return nil, err
		}
		if agg.Exists() {
			return nil, &domain.BusinessRuleViolation{
				Rule:   "project-unique",
				Reason: fmt.Sprintf("project %s already exists", agg.AggregateID()),
			}
		}
		return []staged{{domain.ProjectCreated, &domain.ProjectCreatedPayload{
			Name:        payload.Name,
			Description: payload.Description,
			OwnerID:     payload.OwnerID,
		}}}, nil

	case domain.UpdateProject:
		var payload UpdateProjectPayload
		if err := decodeCommandPayload(cmd, &payload); err != nil {
			return nil, err
		}
		if err := requireActiveProject(agg); err != nil {
			return nil, err
		}
		return []staged{{domain.ProjectUpdated, &domain.ProjectUpdatedPayload{
			Name:        payload.Name,
			Description: payload.Description,
		}}}, nil

	case domain.SelectTemplate:
		var payload SelectTemplatePayload
		if err := decodeCommandPayload(cmd, &payload); err != nil {
			return nil, err
		}
		if err := requireActiveProject(agg); err != nil {
			return nil, err
		}
		if agg.State.TemplateID != "" {
			return nil, &domain.BusinessRuleViolation{
				Rule:   "template-single-selection",
				Reason: fmt.Sprintf("template %s is already selected", agg.State.TemplateID),
			}
		}
		return []staged{{domain.TemplateSelected, &domain.TemplateSelectedPayload{
			TemplateID:      payload.TemplateID,
			TemplateVersion: payload.TemplateVersion,
		}}}, nil

	case domain.CancelTemplateSelection:
		var payload CancelTemplateSelectionPayload
		if err := decodeCommandPayload(cmd, &payload); err != nil {
			return nil, err
		}
		if err := requireProject(agg); err != nil {
			return nil, err
		}
		if agg.State.TemplateID == "" {
			// Nothing to cancel; compensations may arrive more than once.
			return nil, nil
		}
		return []staged{{domain.TemplateSelectionCancelled, &domain.TemplateSelectionCancelledPayload{
			TemplateID: agg.State.TemplateID,
			Reason:     payload.Reason,
		}}}, nil

	case domain.AttachRepository:
		var payload AttachRepositoryPayload
		if err := decodeCommandPayload(cmd, &payload); err != nil {
			return nil, err
		}
		if err := requireActiveProject(agg); err != nil {
			return nil, err
		}
		if agg.State.RepoURL != "" {
			return nil, &domain.BusinessRuleViolation{
				Rule:   "repository-single-attachment",
				Reason: fmt.Sprintf("repository %s is already attached", agg.State.RepoURL),
			}
		}
		return []staged{{domain.RepositoryCreated, &domain.RepositoryCreatedPayload{
			Provider:      payload.Provider,
			RepoURL:       payload.RepoURL,
			DefaultBranch: payload.DefaultBranch,
		}}}, nil

	case domain.FailRepository:
		var payload FailRepositoryPayload
		if err := decodeCommandPayload(cmd, &payload); err != nil {
			return nil, err
		}
		if err := requireProject(agg); err != nil {
			return nil, err
		}
		return []staged{{domain.RepositoryCreationFailed, &domain.RepositoryCreationFailedPayload{
			Provider: payload.Provider,
			Reason:   payload.Reason,
		}}}, nil

	case domain.RequestAnalysis:
		var payload RequestAnalysisPayload
		if err := decodeCommandPayload(cmd, &payload); err != nil {
			return nil, err
		}
		if err := requireActiveProject(agg); err != nil {
			return nil, err
		}
		if agg.State.AnalysisPending {
			return nil, &domain.BusinessRuleViolation{
				Rule:   "analysis-single-inflight",
				Reason: fmt.Sprintf("analysis %s is still pending", agg.State.AnalysisID),
			}
		}
		return []staged{{domain.AnalysisRequested, &domain.AnalysisRequestedPayload{
			AnalysisID: payload.AnalysisID,
			Model:      payload.Model,
		}}}, nil

	case domain.CompleteAnalysis:
		var payload CompleteAnalysisPayload
		if err := decodeCommandPayload(cmd, &payload); err != nil {
			return nil, err
		}
		if err := requireProject(agg); err != nil {
			return nil, err
		}
		if !agg.State.AnalysisPending || agg.State.AnalysisID != payload.AnalysisID {
			return nil, &domain.BusinessRuleViolation{
				Rule:   "analysis-pending",
				Reason: fmt.Sprintf("no pending analysis %s", payload.AnalysisID),
			}
		}
		return []staged{{domain.AnalysisCompleted, &domain.AnalysisCompletedPayload{
			AnalysisID: payload.AnalysisID,
			Summary:    payload.Summary,
			Score:      payload.Score,
		}}}, nil

	case domain.MarkProjectReady:
		var payload MarkProjectReadyPayload
		if err := decodeCommandPayload(cmd, &payload); err != nil {
			return nil, err
		}
		if err := requireActiveProject(agg); err != nil {
			return nil, err
		}
		if agg.State.Status == domain.ProjectStatusReady {
			return nil, nil
		}
		if agg.State.TemplateID == "" || agg.State.RepoURL == "" {
			return nil, &domain.BusinessRuleViolation{
				Rule:   "project-provisioned",
				Reason: "project needs a selected template and an attached repository",
			}
		}
		return []staged{{domain.ProjectReady, &domain.ProjectReadyPayload{
			Notes: payload.Notes,
		}}}, nil

	case domain.ArchiveProject:
		var payload ArchiveProjectPayload
		if err := decodeCommandPayload(cmd, &payload); err != nil {
			return nil, err
		}
		if err := requireProject(agg); err != nil {
			return nil, err
		}
		if agg.Archived() {
			return nil, nil
		}
		return []staged{{domain.ProjectArchived, &domain.ProjectArchivedPayload{
			Reason: payload.Reason,
		}}}, nil

	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCommandType, cmd.CommandType)
	}
}

func requireProject(agg *domain.ProjectAggregate) error {
	if !agg.Exists() {
		return fmt.Errorf("%w: project %s", domain.ErrAggregateNotFound, agg.AggregateID())
	}
	return nil
}

func requireActiveProject(agg *domain.ProjectAggregate) error {
	if err := requireProject(agg); err != nil {
		return err
	}
	if agg.Archived() {
		return &domain.BusinessRuleViolation{
			Rule:   "project-active",
			Reason: fmt.Sprintf("project %s is archived", agg.AggregateID()),
		}
	}
	return nil
}
