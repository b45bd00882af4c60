package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func projectEvent(aggregateID, eventType string, payload any, sequence int64) Event {
	e := NewEvent(AggregateProject, aggregateID, eventType, payload, "corr-1", "")
	e.SequenceNumber = sequence
	return e
}

func TestProjectFoldFullLifecycle(t *testing.T) {
	agg := NewProjectAggregate("proj-1")
	require.False(t, agg.Exists())

	events := []Event{
		projectEvent("proj-1", ProjectCreated, &ProjectCreatedPayload{
			Name: "billing", Description: "billing service", OwnerID: "user-1",
		}, 1),
		projectEvent("proj-1", TemplateSelected, &TemplateSelectedPayload{
			TemplateID: "tmpl-go", TemplateVersion: "1.2.0",
		}, 2),
		projectEvent("proj-1", RepositoryCreated, &RepositoryCreatedPayload{
			Provider: "github", RepoURL: "https://github.com/acme/billing", DefaultBranch: "main",
		}, 3),
		projectEvent("proj-1", ProjectReady, &ProjectReadyPayload{}, 4),
	}

	require.NoError(t, Replay(agg, events))

	require.True(t, agg.Exists())
	require.Equal(t, int64(4), agg.Sequence())
	require.Equal(t, "billing", agg.State.Name)
	require.Equal(t, "user-1", agg.State.OwnerID)
	require.Equal(t, "tmpl-go", agg.State.TemplateID)
	require.Equal(t, "https://github.com/acme/billing", agg.State.RepoURL)
	require.Equal(t, ProjectStatusReady, agg.State.Status)
}

func TestProjectFoldIsDeterministic(t *testing.T) {
	events := []Event{
		projectEvent("proj-1", ProjectCreated, &ProjectCreatedPayload{Name: "a", OwnerID: "u"}, 1),
		projectEvent("proj-1", ProjectUpdated, &ProjectUpdatedPayload{Name: "b"}, 2),
		projectEvent("proj-1", ProjectArchived, &ProjectArchivedPayload{Reason: "done"}, 3),
	}

	first := NewProjectAggregate("proj-1")
	second := NewProjectAggregate("proj-1")
	require.NoError(t, Replay(first, events))
	require.NoError(t, Replay(second, events))

	require.Equal(t, first.State, second.State)
	require.Equal(t, first.Sequence(), second.Sequence())
	require.True(t, first.Archived())
}

func TestProjectFoldClearsRepositoryOnFailure(t *testing.T) {
	agg := NewProjectAggregate("proj-1")
	events := []Event{
		projectEvent("proj-1", ProjectCreated, &ProjectCreatedPayload{Name: "a", OwnerID: "u"}, 1),
		projectEvent("proj-1", RepositoryCreated, &RepositoryCreatedPayload{
			Provider: "github", RepoURL: "https://github.com/acme/a", DefaultBranch: "main",
		}, 2),
		projectEvent("proj-1", RepositoryCreationFailed, &RepositoryCreationFailedPayload{
			Provider: "github", Reason: "quota exceeded",
		}, 3),
	}

	require.NoError(t, Replay(agg, events))
	require.Empty(t, agg.State.RepoURL)
	require.Empty(t, agg.State.RepoProvider)
}

func TestProjectFoldCancelsTemplateSelection(t *testing.T) {
	agg := NewProjectAggregate("proj-1")
	events := []Event{
		projectEvent("proj-1", ProjectCreated, &ProjectCreatedPayload{Name: "a", OwnerID: "u"}, 1),
		projectEvent("proj-1", TemplateSelected, &TemplateSelectedPayload{TemplateID: "tmpl-1", TemplateVersion: "1.0.0"}, 2),
		projectEvent("proj-1", TemplateSelectionCancelled, &TemplateSelectionCancelledPayload{TemplateID: "tmpl-1"}, 3),
	}

	require.NoError(t, Replay(agg, events))
	require.Empty(t, agg.State.TemplateID)
	require.Empty(t, agg.State.TemplateVersion)
}

func TestReplayRejectsForeignEvents(t *testing.T) {
	agg := NewProjectAggregate("proj-1")
	err := Replay(agg, []Event{
		projectEvent("proj-2", ProjectCreated, &ProjectCreatedPayload{Name: "a", OwnerID: "u"}, 1),
	})
	require.Error(t, err)
}

func TestDecodePayloadUnknownType(t *testing.T) {
	_, err := DecodePayload("V9_NOT_A_THING", []byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownEventType)
}

func TestDecodePayloadRoundTrip(t *testing.T) {
	data, err := EncodePayload(&TemplateSelectedPayload{TemplateID: "tmpl-1", TemplateVersion: "2.0.0"})
	require.NoError(t, err)

	decoded, err := DecodePayload(TemplateSelected, data)
	require.NoError(t, err)

	payload, ok := decoded.(*TemplateSelectedPayload)
	require.True(t, ok)
	require.Equal(t, "tmpl-1", payload.TemplateID)
	require.Equal(t, "2.0.0", payload.TemplateVersion)
}
