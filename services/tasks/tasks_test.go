package tasks

import (
	"encoding/json"
	"testing"
	"time"

	"wayfinder/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReminderTask(t *testing.T) {
	fireAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	task, opts, err := NewReminderTask(models.ReminderPayload{
		ReminderID:  "r1",
		RecipientID: "u1",
		Title:       "Trip tomorrow",
		FireAt:      fireAt,
	})
	require.NoError(t, err)
	assert.Equal(t, TypeSendReminder, task.Type())
	assert.Len(t, opts, 2)

	var got models.ReminderPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &got))
	assert.Equal(t, "u1", got.RecipientID)
	assert.True(t, fireAt.Equal(got.FireAt))
}

func TestNewPushRetryTask(t *testing.T) {
	task, _, err := NewPushRetryTask(models.PushRetryPayload{
		NotificationID: "n1",
		RecipientID:    "u1",
		EndpointIDs:    []string{"e1", "e2"},
		Attempt:        2,
	}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, TypePushRetry, task.Type())

	var got models.PushRetryPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &got))
	assert.Equal(t, []string{"e1", "e2"}, got.EndpointIDs)
	assert.Equal(t, 2, got.Attempt)
}
