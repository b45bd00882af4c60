package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCommandMarshalsPayload(t *testing.T) {
	cmd, err := NewCommand("proj-1", CreateProject,
		map[string]string{"name": "a", "owner_id": "u"}, "corr-1", "cause-1")
	require.NoError(t, err)
	require.NotEmpty(t, cmd.CommandID)
	require.Equal(t, "corr-1", cmd.CorrelationID)
	require.Equal(t, "cause-1", cmd.CausationID)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(cmd.Payload, &decoded))
	require.Equal(t, "a", decoded["name"])

	// The same payload bytes survive the event codec too.
	data, err := EncodePayload(&ProjectCreatedPayload{Name: "a", OwnerID: "u"})
	require.NoError(t, err)
	payload, err := DecodePayload(ProjectCreated, data)
	require.NoError(t, err)
	require.Equal(t, "a", payload.(*ProjectCreatedPayload).Name)
}

func TestNewCommandStartsCorrelationChain(t *testing.T) {
	cmd, err := NewCommand("proj-1", CreateProject, map[string]string{}, "", "")
	require.NoError(t, err)
	require.NotEmpty(t, cmd.CorrelationID)
	require.False(t, cmd.IssuedAt.IsZero())
}

func TestNormalizeFillsOptionalFields(t *testing.T) {
	cmd := Command{AggregateID: "proj-1", CommandType: CreateProject}
	cmd.Normalize()
	require.NotEmpty(t, cmd.CommandID)
	require.NotEmpty(t, cmd.CorrelationID)
	require.False(t, cmd.IssuedAt.IsZero())
}
