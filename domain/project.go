package domain

import "fmt"

// Project status values
const (
	ProjectStatusDraft    = "DRAFT"
	ProjectStatusReady    = "READY"
	ProjectStatusArchived = "ARCHIVED"
)

// ProjectState is the current state of a project aggregate, rebuilt by
// folding its event stream
type ProjectState struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	OwnerID         string `json:"owner_id"`
	Status          string `json:"status"`
	TemplateID      string `json:"template_id"`
	TemplateVersion string `json:"template_version"`
	RepoProvider    string `json:"repo_provider"`
	RepoURL         string `json:"repo_url"`
	DefaultBranch   string `json:"default_branch"`
	AnalysisID      string `json:"analysis_id"`
	AnalysisSummary string `json:"analysis_summary"`
	AnalysisPending bool   `json:"analysis_pending"`
}

// ProjectAggregate is the aggregate for a project
type ProjectAggregate struct {
	*AggregateBase
	State ProjectState
}

// NewProjectAggregate creates an empty project aggregate
func NewProjectAggregate(id string) *ProjectAggregate {
	return &ProjectAggregate{
		AggregateBase: NewAggregateBase(AggregateProject, id),
	}
}

// Exists reports whether any event has been applied
func (a *ProjectAggregate) Exists() bool {
	return a.Sequence() > 0
}

// Archived reports whether the project is in its terminal archived state
func (a *ProjectAggregate) Archived() bool {
	return a.State.Status == ProjectStatusArchived
}

// Apply reduces a single event into the project state
func (a *ProjectAggregate) Apply(e Event) error {
	switch p := e.Payload.(type) {
	case *ProjectCreatedPayload:
		a.State.Name = p.Name
		a.State.Description = p.Description
		a.State.OwnerID = p.OwnerID
		a.State.Status = ProjectStatusDraft

	case *ProjectUpdatedPayload:
		a.State.Name = p.Name
		a.State.Description = p.Description

	case *TemplateSelectedPayload:
		a.State.TemplateID = p.TemplateID
		a.State.TemplateVersion = p.TemplateVersion

	case *TemplateSelectionCancelledPayload:
		a.State.TemplateID = ""
		a.State.TemplateVersion = ""

	case *RepositoryCreatedPayload:
		a.State.RepoProvider = p.Provider
		a.State.RepoURL = p.RepoURL
		a.State.DefaultBranch = p.DefaultBranch

	case *RepositoryCreationFailedPayload:
		a.State.RepoProvider = ""
		a.State.RepoURL = ""
		a.State.DefaultBranch = ""

	case *AnalysisRequestedPayload:
		a.State.AnalysisID = p.AnalysisID
		a.State.AnalysisPending = true

	case *AnalysisCompletedPayload:
		a.State.AnalysisID = p.AnalysisID
		a.State.AnalysisSummary = p.Summary
		a.State.AnalysisPending = false

	case *ProjectReadyPayload:
		a.State.Status = ProjectStatusReady

	case *ProjectArchivedPayload:
		a.State.Status = ProjectStatusArchived

	default:
		return fmt.Errorf("%w: %T", ErrUnknownEventType, e.Payload)
	}

	a.advance(e)
	return nil
}
