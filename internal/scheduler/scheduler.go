package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tg-eventbot/internal/logger"
	"tg-eventbot/internal/models"
	"tg-eventbot/internal/platform"
	"tg-eventbot/internal/storage"
)

const (
	// staleAfter is how late a firing may be before the notification is
	// dropped instead of sent. A "starting now" ping for an event long past
	// is worse than silence.
	staleAfter = 5 * time.Minute

	// cleanupRetention is how long a fired event's membership group survives
	// before it is deleted.
	cleanupRetention = 7 * 24 * time.Hour

	// digestLimit caps how many events the community digest lists.
	digestLimit = 10
)

// ErrDuplicateName is returned by Add when the community already has an
// event with the same name (case-insensitive).
var ErrDuplicateName = errors.New("an event with that name already exists")

// Service owns the event state: the ordered per-community lists, timezone
// preferences, pending cleanups and digest references. Every operation takes
// the service mutex, mutates in memory, persists the full document, and only
// then performs external side effects.
type Service struct {
	mu     sync.Mutex
	state  *models.State
	store  storage.Store
	client platform.Client

	cron *cron.Cron

	// now is replaceable in tests.
	now func() time.Time
}

// New builds a Service around previously loaded state.
func New(state *models.State, store storage.Store, client platform.Client) *Service {
	state.Normalize()
	return &Service{
		state:  state,
		store:  store,
		client: client,
		now:    time.Now,
	}
}

// Start schedules the periodic tick at the top of every minute. Idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}
	c := cron.New()
	// "* * * * *" fires wall-clock aligned at each minute boundary; cron
	// computes the initial delay from the current time.
	_, err := c.AddFunc("* * * * *", func() {
		s.Tick(ctx)
	})
	if err != nil {
		logger.Errorf("Failed to register tick job: %v", err)
		return
	}
	c.Start()
	s.cron = c
	logger.Infof("Event scheduler started, ticking every minute")
}

// Stop halts the tick timer. Idempotent; safe to call during shutdown.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	s.cron.Stop()
	s.cron = nil
	logger.Infof("Event scheduler stopped")
}

// persistLocked writes a snapshot of the current state. A failed save is
// logged and the in-memory state stays authoritative until the next save
// succeeds.
func (s *Service) persistLocked() {
	if err := s.store.Save(s.state.Clone()); err != nil {
		logger.Errorf("Failed to persist state: %v", err)
	}
}

// findLocked returns the index of the named event, or -1.
func findLocked(events []*models.Event, name string) int {
	for i, ev := range events {
		if ev.NameEquals(name) {
			return i
		}
	}
	return -1
}

// insertOrdered places the event into the list keeping ascending due order.
// Events with the same due instant keep insertion order.
func insertOrdered(events []*models.Event, ev *models.Event) []*models.Event {
	pos := len(events)
	for i, existing := range events {
		if existing.Due.After(ev.Due) {
			pos = i
			break
		}
	}
	events = append(events, nil)
	copy(events[pos+1:], events[pos:])
	events[pos] = ev
	return events
}

// Add inserts a new event, rejecting case-insensitive name collisions within
// the community, and refreshes the community digest.
func (s *Service) Add(ctx context.Context, ev *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.state.Events[ev.CommunityID]
	if findLocked(events, ev.Name) >= 0 {
		return ErrDuplicateName
	}
	s.state.Events[ev.CommunityID] = insertOrdered(events, ev)
	s.persistLocked()
	logger.Infof("Added event %q in community %d, due %s", ev.Name, ev.CommunityID, ev.Due.Format(time.RFC3339))

	s.updateDigestLocked(ctx, ev.CommunityID)
	return nil
}

// GetByName looks an event up case-insensitively. A miss is a normal
// negative result, not an error.
func (s *Service) GetByName(communityID int64, name string) (*models.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.state.Events[communityID]
	i := findLocked(events, name)
	if i < 0 {
		return nil, false
	}
	copied := *events[i]
	return &copied, true
}

// Events returns a copy of the community's event list, soonest first.
func (s *Service) Events(communityID int64) []*models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.state.Events[communityID]
	out := make([]*models.Event, len(events))
	for i, ev := range events {
		copied := *ev
		out[i] = &copied
	}
	return out
}

// UpdateByName applies a mutation to the named event, re-sorts in case the
// due instant moved, persists and refreshes the digest. Returns false when
// the event does not exist.
func (s *Service) UpdateByName(ctx context.Context, communityID int64, name string, update func(*models.Event)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.state.Events[communityID]
	i := findLocked(events, name)
	if i < 0 {
		return false, nil
	}
	ev := events[i]
	update(ev)
	// Reinsert to restore due order.
	events = append(events[:i], events[i+1:]...)
	s.state.Events[communityID] = insertOrdered(events, ev)
	s.persistLocked()

	s.updateDigestLocked(ctx, communityID)
	return true, nil
}

// DeleteByName removes the named event, persists, refreshes the digest, and
// deletes the event's membership group. Returns false when no such event.
func (s *Service) DeleteByName(ctx context.Context, communityID int64, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.state.Events[communityID]
	i := findLocked(events, name)
	if i < 0 {
		return false, nil
	}
	ev := events[i]
	s.state.Events[communityID] = append(events[:i], events[i+1:]...)
	s.persistLocked()
	logger.Infof("Deleted event %q in community %d", ev.Name, communityID)

	if err := s.client.DeleteGroup(ctx, communityID, ev.GroupID, "event deleted"); err != nil {
		if errors.Is(err, platform.ErrGroupNotFound) {
			logger.Warningf("Group %d for deleted event %q already gone", ev.GroupID, ev.Name)
		} else {
			logger.Errorf("Failed to delete group %d for event %q: %v", ev.GroupID, ev.Name, err)
		}
	}

	s.updateDigestLocked(ctx, communityID)
	return true, nil
}

// AddParticipant adds the user to the named event's group. The first return
// reports whether membership actually changed, the second whether the event
// exists.
func (s *Service) AddParticipant(ctx context.Context, communityID, userID int64, name, nickname string) (changed bool, found bool, err error) {
	ev, ok := s.GetByName(communityID, name)
	if !ok {
		return false, false, nil
	}
	changed, err = s.client.AddGroupMember(ctx, ev.GroupID, userID, nickname)
	return changed, true, err
}

// RemoveParticipant removes the user from the named event's group.
func (s *Service) RemoveParticipant(ctx context.Context, communityID, userID int64, name string) (changed bool, found bool, err error) {
	ev, ok := s.GetByName(communityID, name)
	if !ok {
		return false, false, nil
	}
	changed, err = s.client.RemoveGroupMember(ctx, ev.GroupID, userID)
	return changed, true, err
}

// SetCommunityTimezone stores the community default timezone.
func (s *Service) SetCommunityTimezone(communityID int64, zone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.GuildDefaultTimezones[communityID] = zone
	s.persistLocked()
}

// CommunityTimezone returns the community default timezone, "" when unset.
func (s *Service) CommunityTimezone(communityID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.GuildDefaultTimezones[communityID]
}

// SetUserTimezone stores a personal timezone override.
func (s *Service) SetUserTimezone(userID int64, zone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.UserTimezones[userID] = zone
	s.persistLocked()
}

// UserTimezone returns the user's override, "" when unset.
func (s *Service) UserTimezone(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.UserTimezones[userID]
}
