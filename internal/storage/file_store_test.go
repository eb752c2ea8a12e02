package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-eventbot/internal/models"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := openFileStore(path)
	require.NoError(t, err)

	state := models.NewState()
	state.GuildDefaultTimezones[100] = "Europe/Berlin"
	state.UserTimezones[42] = "Asia/Tokyo"
	state.Events[100] = []*models.Event{{
		Name:        "party",
		Due:         time.Date(2026, 9, 12, 18, 30, 0, 0, time.UTC),
		CommunityID: 100,
		ChannelID:   100,
		OwnerID:     42,
		GroupID:     7,
		Description: "bring snacks",
	}}
	state.FinishedGroups = []models.CleanupRecord{{
		CommunityID: 100,
		GroupID:     6,
		FiredAt:     time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}}
	state.DigestMessages[100] = models.MessageRef{ChatID: 100, MessageID: 555}

	require.NoError(t, store.Save(state))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestFileStoreLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "state.json")
	store, err := openFileStore(path)
	require.NoError(t, err)

	state, err := store.Load()
	require.NoError(t, err)
	assert.NotNil(t, state.Events)
	assert.Empty(t, state.Events)
}

func TestFileStoreDocumentKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := openFileStore(path)
	require.NoError(t, err)

	state := models.NewState()
	state.GuildDefaultTimezones[1] = "UTC"
	require.NoError(t, store.Save(state))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, key := range []string{"guildDefaultTimeZones", "events", "userTimeZones", "finishedRoles", "eventInfoMessage"} {
		assert.Contains(t, doc, key)
	}
}

func TestFileStoreSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store, err := openFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Save(models.NewState()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}
