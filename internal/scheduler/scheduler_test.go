package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-eventbot/internal/models"
	"tg-eventbot/internal/platform"
)

// fakeStore records saved snapshots.
type fakeStore struct {
	mu    sync.Mutex
	saves []*models.State
}

func (f *fakeStore) Load() (*models.State, error) { return models.NewState(), nil }

func (f *fakeStore) Save(state *models.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, state)
	return nil
}

func (f *fakeStore) Close() error { return nil }

// fakeClient records platform side effects.
type fakeClient struct {
	mu          sync.Mutex
	nextGroupID int64
	members     map[int64]map[int64]bool
	sent        []sentMessage
	edits       []sentMessage
	deleted     []int64
	nextMsgID   int
}

type sentMessage struct {
	chatID int64
	text   string
}

func newFakeClient() *fakeClient {
	return &fakeClient{members: make(map[int64]map[int64]bool)}
}

func (f *fakeClient) SendMessage(ctx context.Context, chatID int64, text string) (models.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	f.nextMsgID++
	return models.MessageRef{ChatID: chatID, MessageID: f.nextMsgID}, nil
}

func (f *fakeClient) EditMessage(ctx context.Context, ref models.MessageRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sentMessage{chatID: ref.ChatID, text: text})
	return nil
}

func (f *fakeClient) CreateGroup(ctx context.Context, communityID int64, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextGroupID++
	f.members[f.nextGroupID] = make(map[int64]bool)
	return f.nextGroupID, nil
}

func (f *fakeClient) DeleteGroup(ctx context.Context, communityID, groupID int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[groupID]; !ok {
		return platform.ErrGroupNotFound
	}
	delete(f.members, groupID)
	f.deleted = append(f.deleted, groupID)
	return nil
}

func (f *fakeClient) AddGroupMember(ctx context.Context, groupID, userID int64, nickname string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[groupID]
	if !ok {
		return false, platform.ErrGroupNotFound
	}
	if m[userID] {
		return false, nil
	}
	m[userID] = true
	return true, nil
}

func (f *fakeClient) RemoveGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[groupID]
	if !ok {
		return false, platform.ErrGroupNotFound
	}
	if !m[userID] {
		return false, nil
	}
	delete(m, userID)
	return true, nil
}

func (f *fakeClient) IsGroupMember(groupID, userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[groupID][userID]
}

func (f *fakeClient) GroupMention(groupID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[groupID]; !ok {
		return "", platform.ErrGroupNotFound
	}
	return fmt.Sprintf("@group%d", groupID), nil
}

func (f *fakeClient) DisplayName(ctx context.Context, userID int64) string {
	return fmt.Sprintf("user %d", userID)
}

func (f *fakeClient) IsStaff(ctx context.Context, communityID, userID int64) (bool, error) {
	return false, nil
}

func (f *fakeClient) AwaitReply(ctx context.Context, chatID, userID int64, timeout time.Duration) (string, error) {
	return "", platform.ErrReplyTimeout
}

func (f *fakeClient) notificationsTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.chatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

const community = int64(100)

func newTestService(t *testing.T, now time.Time) (*Service, *fakeClient, *fakeStore) {
	t.Helper()
	client := newFakeClient()
	store := &fakeStore{}
	svc := New(models.NewState(), store, client)
	svc.now = func() time.Time { return now }
	return svc, client, store
}

func makeEvent(name string, due time.Time, groupID int64) *models.Event {
	return &models.Event{
		Name:        name,
		Due:         due,
		CommunityID: community,
		ChannelID:   community,
		OwnerID:     1,
		GroupID:     groupID,
	}
}

func TestAddKeepsEventsOrdered(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, makeEvent("charlie", now.Add(3*time.Hour), 3)))
	require.NoError(t, svc.Add(ctx, makeEvent("alpha", now.Add(1*time.Hour), 1)))
	require.NoError(t, svc.Add(ctx, makeEvent("bravo", now.Add(2*time.Hour), 2)))

	list := svc.Events(community)
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "bravo", list[1].Name)
	assert.Equal(t, "charlie", list[2].Name)
}

func TestAddSameDueKeepsInsertionOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()
	due := now.Add(time.Hour)

	require.NoError(t, svc.Add(ctx, makeEvent("first", due, 1)))
	require.NoError(t, svc.Add(ctx, makeEvent("second", due, 2)))
	require.NoError(t, svc.Add(ctx, makeEvent("third", due, 3)))

	list := svc.Events(community)
	require.Len(t, list, 3)
	assert.Equal(t, "first", list[0].Name)
	assert.Equal(t, "second", list[1].Name)
	assert.Equal(t, "third", list[2].Name)
}

func TestAddRejectsDuplicateNameCaseInsensitive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, makeEvent("Game Night", now.Add(time.Hour), 1)))
	err := svc.Add(ctx, makeEvent("game night", now.Add(2*time.Hour), 2))
	assert.ErrorIs(t, err, ErrDuplicateName)

	// Same name in another community is fine.
	other := makeEvent("GAME NIGHT", now.Add(time.Hour), 3)
	other.CommunityID = community + 1
	other.ChannelID = community + 1
	assert.NoError(t, svc.Add(ctx, other))
}

func TestGetByNameIsCaseInsensitive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)
	require.NoError(t, svc.Add(context.Background(), makeEvent("Raid Night", now.Add(time.Hour), 1)))

	ev, ok := svc.GetByName(community, "raid night")
	require.True(t, ok)
	assert.Equal(t, "Raid Night", ev.Name)

	_, ok = svc.GetByName(community, "missing")
	assert.False(t, ok)
}

func TestTickFiresDueEventsExactlyOnce(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, client, _ := newTestService(t, start)
	ctx := context.Background()

	groupID, err := client.CreateGroup(ctx, community, "standup")
	require.NoError(t, err)
	require.NoError(t, svc.Add(ctx, makeEvent("standup", start.Add(time.Minute), groupID)))
	require.NoError(t, svc.Add(ctx, makeEvent("later", start.Add(time.Hour), groupID+100)))

	// Before due: nothing fires.
	svc.Tick(ctx)
	assert.Len(t, svc.Events(community), 2)

	// At due: the event fires and leaves the scheduled list.
	svc.now = func() time.Time { return start.Add(time.Minute) }
	before := len(client.notificationsTo(community))
	svc.Tick(ctx)
	list := svc.Events(community)
	require.Len(t, list, 1)
	assert.Equal(t, "later", list[0].Name)
	notified := client.notificationsTo(community)[before:]
	require.NotEmpty(t, notified)
	assert.Contains(t, notified[0], "standup")
	assert.Contains(t, notified[0], "starting now")

	// Next tick: no second notification for the same event.
	count := len(client.notificationsTo(community))
	svc.Tick(ctx)
	for _, text := range client.notificationsTo(community)[count:] {
		assert.NotContains(t, text, "starting now")
	}
}

func TestTickDropsStaleNotificationButStillRetires(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, client, _ := newTestService(t, start)
	ctx := context.Background()

	groupID, err := client.CreateGroup(ctx, community, "missed")
	require.NoError(t, err)
	require.NoError(t, svc.Add(ctx, makeEvent("missed", start.Add(time.Minute), groupID)))

	// Wake up well past the stale window, as after downtime.
	svc.now = func() time.Time { return start.Add(10 * time.Minute) }
	svc.Tick(ctx)

	assert.Empty(t, svc.Events(community))
	for _, text := range client.notificationsTo(community) {
		assert.NotContains(t, text, "starting now")
	}
}

func TestTickDeletesGroupsAfterRetentionWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, client, _ := newTestService(t, start)
	ctx := context.Background()

	groupID, err := client.CreateGroup(ctx, community, "party")
	require.NoError(t, err)
	require.NoError(t, svc.Add(ctx, makeEvent("party", start.Add(time.Minute), groupID)))

	fireTime := start.Add(time.Minute)
	svc.now = func() time.Time { return fireTime }
	svc.Tick(ctx)
	assert.Empty(t, client.deleted)

	// Just inside the window: the group survives.
	svc.now = func() time.Time { return fireTime.Add(cleanupRetention) }
	svc.Tick(ctx)
	assert.Empty(t, client.deleted)

	// Past the window: the group goes away.
	svc.now = func() time.Time { return fireTime.Add(cleanupRetention + time.Minute) }
	svc.Tick(ctx)
	assert.Equal(t, []int64{groupID}, client.deleted)

	// And only once.
	svc.now = func() time.Time { return fireTime.Add(cleanupRetention + time.Hour) }
	svc.Tick(ctx)
	assert.Equal(t, []int64{groupID}, client.deleted)
}

func TestTickSurvivesMissingGroupDuringCleanup(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, client, _ := newTestService(t, start)
	ctx := context.Background()

	// Group never created on the platform side.
	require.NoError(t, svc.Add(ctx, makeEvent("ghost", start.Add(time.Minute), 999)))

	svc.now = func() time.Time { return start.Add(time.Minute) }
	svc.Tick(ctx)

	svc.now = func() time.Time { return start.Add(time.Minute).Add(cleanupRetention + time.Minute) }
	svc.Tick(ctx)
	assert.Empty(t, client.deleted)

	// The record is gone, nothing to retry.
	svc.Tick(ctx)
	assert.Empty(t, client.deleted)
}

func TestDeleteByNameRemovesEventAndGroup(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, client, _ := newTestService(t, now)
	ctx := context.Background()

	groupID, err := client.CreateGroup(ctx, community, "movie")
	require.NoError(t, err)
	require.NoError(t, svc.Add(ctx, makeEvent("movie", now.Add(time.Hour), groupID)))

	found, err := svc.DeleteByName(ctx, community, "MOVIE")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, svc.Events(community))
	assert.Equal(t, []int64{groupID}, client.deleted)

	found, err = svc.DeleteByName(ctx, community, "movie")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDigestIsEditedInPlace(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, client, _ := newTestService(t, now)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, makeEvent("one", now.Add(time.Hour), 1)))
	postings := len(client.notificationsTo(community))
	require.Equal(t, 1, postings)

	// Further changes edit the same message instead of posting new ones.
	require.NoError(t, svc.Add(ctx, makeEvent("two", now.Add(2*time.Hour), 2)))
	svc.UpdateDigest(ctx, community)
	assert.Equal(t, postings, len(client.notificationsTo(community)))
	assert.NotEmpty(t, client.edits)

	last := client.edits[len(client.edits)-1]
	assert.Contains(t, last.text, "one")
	assert.Contains(t, last.text, "two")
}

func TestDigestRendersEmptyStateWithoutEvents(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, client, _ := newTestService(t, now)
	ctx := context.Background()

	groupID, err := client.CreateGroup(ctx, community, "only")
	require.NoError(t, err)
	require.NoError(t, svc.Add(ctx, makeEvent("only", now.Add(time.Hour), groupID)))
	posted := len(client.notificationsTo(community))
	require.Equal(t, 1, posted)

	found, err := svc.DeleteByName(ctx, community, "only")
	require.NoError(t, err)
	require.True(t, found)

	// The emptied community keeps its single digest message, edited to the
	// explicit empty state.
	assert.Equal(t, posted, len(client.notificationsTo(community)))
	require.NotEmpty(t, client.edits)
	last := client.edits[len(client.edits)-1]
	assert.Contains(t, last.text, "No upcoming events")
	assert.NotContains(t, last.text, "only")

	// Refreshing again stays an edit of the same empty state.
	svc.UpdateDigest(ctx, community)
	assert.Equal(t, posted, len(client.notificationsTo(community)))
	assert.Contains(t, client.edits[len(client.edits)-1].text, "No upcoming events")
}

func TestDigestCapsListedEvents(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, client, _ := newTestService(t, now)
	ctx := context.Background()

	for i := 0; i < digestLimit+3; i++ {
		name := fmt.Sprintf("event-%02d", i)
		require.NoError(t, svc.Add(ctx, makeEvent(name, now.Add(time.Duration(i+1)*time.Hour), int64(i+1))))
	}

	last := client.edits[len(client.edits)-1]
	assert.Contains(t, last.text, fmt.Sprintf("event-%02d", digestLimit-1))
	assert.NotContains(t, last.text, fmt.Sprintf("event-%02d", digestLimit))
	assert.Contains(t, last.text, "and 3 more")
}

func TestUpdateByNameResortsList(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, makeEvent("early", now.Add(time.Hour), 1)))
	require.NoError(t, svc.Add(ctx, makeEvent("late", now.Add(2*time.Hour), 2)))

	found, err := svc.UpdateByName(ctx, community, "early", func(ev *models.Event) {
		ev.Due = now.Add(3 * time.Hour)
	})
	require.NoError(t, err)
	require.True(t, found)

	list := svc.Events(community)
	require.Len(t, list, 2)
	assert.Equal(t, "late", list[0].Name)
	assert.Equal(t, "early", list[1].Name)
}

func TestEveryMutationPersists(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, store := newTestService(t, now)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, makeEvent("persisted", now.Add(time.Hour), 1)))
	require.NotEmpty(t, store.saves)

	// The snapshot is detached from live state.
	snapshot := store.saves[len(store.saves)-1]
	_, err := svc.DeleteByName(ctx, community, "persisted")
	require.NoError(t, err)
	assert.Len(t, snapshot.Events[community], 1)

	final := store.saves[len(store.saves)-1]
	assert.Empty(t, final.Events[community])
}
