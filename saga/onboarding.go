package saga

import (
	"fmt"
	"time"

	"github.com/Bikxs/skafu-core/commands"
	"github.com/Bikxs/skafu-core/domain"
)

// ProjectOnboarding saga type and states
const (
	ProjectOnboardingType = "project-onboarding"

	stateStarted          = "STARTED"
	stateTemplateSelected = "TEMPLATE_SELECTED"
	stateRepoCreated      = "REPOSITORY_CREATED"
	stateProvisioned      = "PROVISIONED"
)

// contextProjectID is the context key carrying the project aggregate id
const contextProjectID = "project_id"

// NewProjectOnboarding builds the onboarding saga: a created project must
// get a template selected and a repository attached, in either order, before
// it is marked ready. A failed repository creation or a state deadline undoes
// whatever side already landed.
func NewProjectOnboarding(stateDeadline time.Duration) *Definition {
	return &Definition{
		SagaType: ProjectOnboardingType,

		InitiatingEvents: map[string]bool{
			domain.ProjectCreated: true,
		},
		InitialState: stateStarted,

		AwaitedEvents: []string{
			domain.TemplateSelected,
			domain.RepositoryCreated,
			domain.ProjectReady,
		},

		Transitions: map[TransitionKey]Transition{
			{State: stateStarted, EventType: domain.TemplateSelected}: {
				Next: stateTemplateSelected,
			},
			{State: stateStarted, EventType: domain.RepositoryCreated}: {
				Next: stateRepoCreated,
			},
			{State: stateTemplateSelected, EventType: domain.RepositoryCreated}: {
				Next:     stateProvisioned,
				Commands: []CommandFactory{markProjectReady},
			},
			{State: stateRepoCreated, EventType: domain.TemplateSelected}: {
				Next:     stateProvisioned,
				Commands: []CommandFactory{markProjectReady},
			},
			{State: stateProvisioned, EventType: domain.ProjectReady}: {
				Next: StateCompleted,
			},
		},

		FailureEvents: map[string]bool{
			domain.RepositoryCreationFailed: true,
		},

		Compensations: map[string][]CommandFactory{
			stateStarted:          {archiveProject},
			stateTemplateSelected: {cancelTemplateSelection, archiveProject},
			stateRepoCreated:      {archiveProject},
			stateProvisioned:      {archiveProject},
		},

		StateDeadline: stateDeadline,

		SeedContext: func(event domain.Event) map[string]string {
			return map[string]string{
				contextProjectID: event.AggregateID,
			}
		},
	}
}

func projectID(inst *Instance) (string, error) {
	id, ok := inst.Context[contextProjectID]
	if !ok || id == "" {
		return "", fmt.Errorf("saga %s has no project id in context", inst.CorrelationID)
	}
	return id, nil
}

func markProjectReady(inst *Instance, event domain.Event) (domain.Command, error) {
	id, err := projectID(inst)
	if err != nil {
		return domain.Command{}, err
	}

	return domain.NewCommand(id, domain.MarkProjectReady,
		commands.MarkProjectReadyPayload{Notes: "onboarding complete"},
		inst.CorrelationID, event.EventID)
}

func cancelTemplateSelection(inst *Instance, event domain.Event) (domain.Command, error) {
	id, err := projectID(inst)
	if err != nil {
		return domain.Command{}, err
	}

	return domain.NewCommand(id, domain.CancelTemplateSelection,
		commands.CancelTemplateSelectionPayload{Reason: "onboarding compensated"},
		inst.CorrelationID, event.EventID)
}

func archiveProject(inst *Instance, event domain.Event) (domain.Command, error) {
	id, err := projectID(inst)
	if err != nil {
		return domain.Command{}, err
	}

	return domain.NewCommand(id, domain.ArchiveProject,
		commands.ArchiveProjectPayload{Reason: "onboarding compensated"},
		inst.CorrelationID, event.EventID)
}
