package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagwatch/tagwatch/internal/recipient"
)

func TestParseSeedRecipients(t *testing.T) {
	got, err := parseSeedRecipients(" tag-1:alice:tok-a , tag-1:bob:tok-b:apns,,")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "tag-1", got[0].DeviceID)
	assert.Equal(t, "alice", got[0].UserID)
	assert.Equal(t, "tok-a", *got[0].PushToken)
	assert.Equal(t, recipient.PlatformFCM, got[0].Platform)
	assert.True(t, got[0].Active)

	assert.Equal(t, recipient.PlatformAPNS, got[1].Platform)
}

func TestParseSeedRecipients_Invalid(t *testing.T) {
	for _, raw := range []string{"tag-1:alice", "tag-1::tok", "a:b:c:d:e", "tag-1:alice:tok:pigeon"} {
		_, err := parseSeedRecipients(raw)
		assert.Error(t, err, raw)
	}
}

func TestSeedRecipients(t *testing.T) {
	ctx := context.Background()
	repo := recipient.NewInMemoryRepository()

	n, err := seedRecipients(ctx, repo, "tag-1:alice:tok-a,tag-2:alice:tok-c")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-seeding updates instead of duplicating.
	_, err = seedRecipients(ctx, repo, "tag-1:alice:tok-new")
	require.NoError(t, err)

	list, err := repo.ListNotifiable(ctx, "tag-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tok-new", *list[0].PushToken)
}
