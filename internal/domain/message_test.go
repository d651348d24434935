package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	now := time.Now()

	m, err := NewMessage("corr-1", 1, 10, "hello", now)
	require.NoError(t, err)
	assert.True(t, m.IsVisible())
	assert.Equal(t, now, m.CreatedAt)
	assert.Equal(t, now, m.UpdatedAt, "creation stamps both timestamps equal")

	var vErr *ValidationError
	_, err = NewMessage("corr-2", 1, 10, "", now)
	assert.ErrorAs(t, err, &vErr)

	_, err = NewMessage("corr-3", 1, 10, strings.Repeat("a", 2001), now)
	assert.ErrorAs(t, err, &vErr)
}

func TestMessageUpdateContent(t *testing.T) {
	now := time.Now()
	m, err := NewMessage("corr-1", 1, 10, "hello", now)
	require.NoError(t, err)

	later := now.Add(time.Minute)
	err = m.UpdateContent(10, "hello there", later)
	require.NoError(t, err)
	assert.Equal(t, "hello there", m.Content)
	assert.Equal(t, later, m.UpdatedAt)

	var authErr *AuthorizationError
	err = m.UpdateContent(20, "hijack", later)
	assert.ErrorAs(t, err, &authErr, "only the author can edit")
	assert.Equal(t, "hello there", m.Content)
}

func TestMessageSoftDelete(t *testing.T) {
	now := time.Now()
	m, err := NewMessage("corr-1", 1, 10, "hello", now)
	require.NoError(t, err)

	var authErr *AuthorizationError
	err = m.Delete(20, now)
	assert.ErrorAs(t, err, &authErr, "only the author can delete")

	err = m.Delete(10, now)
	require.NoError(t, err)
	assert.False(t, m.IsVisible(), "a deleted message never passes IsVisible")

	var vErr *ValidationError
	err = m.UpdateContent(10, "edit after delete", now)
	assert.ErrorAs(t, err, &vErr, "editing a deleted message always fails")

	err = m.Delete(10, now)
	assert.ErrorAs(t, err, &vErr, "double delete fails")
}

func TestMessageRestore(t *testing.T) {
	now := time.Now()
	m, err := NewMessage("corr-1", 1, 10, "hello", now)
	require.NoError(t, err)

	var vErr *ValidationError
	err = m.Restore(10, now)
	assert.ErrorAs(t, err, &vErr, "restoring an active message fails")

	require.NoError(t, m.Delete(10, now))

	var authErr *AuthorizationError
	err = m.Restore(20, now)
	assert.ErrorAs(t, err, &authErr)

	later := now.Add(time.Minute)
	err = m.Restore(10, later)
	require.NoError(t, err)
	assert.True(t, m.IsVisible())
	assert.Equal(t, later, m.UpdatedAt)
}
