package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tg-eventbot/internal/logger"
	"tg-eventbot/internal/models"
	"tg-eventbot/internal/platform"
)

// Tick is one pass of the periodic scheduler. It moves due events out of the
// scheduled lists into pending cleanup, persists, and only then notifies;
// afterwards it prunes cleanup records past the retention window, persists,
// and only then deletes groups. The mutex is held for the whole pass, so a
// tick always runs to completion before any other operation touches state.
func (s *Service) Tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	fired := s.collectDueLocked(now)

	if len(fired) > 0 {
		// State changed: the document must be durable before any message is
		// sent, so a crash here converges on restart.
		s.persistLocked()
	}

	digests := make(map[int64]bool)
	for _, ev := range fired {
		digests[ev.CommunityID] = true
		s.notifyLocked(ctx, ev, now)
	}
	// Communities that have events but no digest yet get one even on a
	// quiet tick.
	for communityID, events := range s.state.Events {
		if len(events) > 0 && s.state.DigestMessages[communityID].IsZero() {
			digests[communityID] = true
		}
	}
	for communityID := range digests {
		s.updateDigestLocked(ctx, communityID)
	}

	s.pruneCleanupsLocked(ctx, now)
}

// collectDueLocked removes every event with due <= now from the scheduled
// lists and records a cleanup entry for each. An event is processed exactly
// once: after this pass it no longer exists in any scheduled list.
func (s *Service) collectDueLocked(now time.Time) []*models.Event {
	var fired []*models.Event
	for communityID, events := range s.state.Events {
		var remaining []*models.Event
		for _, ev := range events {
			if ev.IsDue(now) {
				fired = append(fired, ev)
				s.state.FinishedGroups = append(s.state.FinishedGroups, models.CleanupRecord{
					CommunityID: ev.CommunityID,
					GroupID:     ev.GroupID,
					FiredAt:     ev.Due,
				})
			} else {
				remaining = append(remaining, ev)
			}
		}
		if len(remaining) == len(events) {
			continue
		}
		if len(remaining) == 0 {
			delete(s.state.Events, communityID)
		} else {
			s.state.Events[communityID] = remaining
		}
	}
	return fired
}

// notifyLocked announces a fired event in its channel, tagging the
// membership group. Firings more than staleAfter late are dropped.
func (s *Service) notifyLocked(ctx context.Context, ev *models.Event, now time.Time) {
	if now.Sub(ev.Due) > staleAfter {
		logger.Warningf("Skipping stale notification for event %q (due %s, now %s)",
			ev.Name, ev.Due.Format(time.RFC3339), now.Format(time.RFC3339))
		return
	}

	mention, err := s.client.GroupMention(ev.GroupID)
	if err != nil {
		logger.Warningf("No group mention for event %q: %v", ev.Name, err)
		mention = ""
	}

	text := fmt.Sprintf("📅 <b>%s</b> is starting now!", ev.Name)
	if ev.Description != "" {
		text += "\n" + ev.Description
	}
	if mention != "" {
		text += "\n" + mention
	}

	if _, err := s.client.SendMessage(ctx, ev.ChannelID, text); err != nil {
		// A lost notification is accepted; the tick moves on to the next
		// event.
		logger.Errorf("Failed to notify channel %d for event %q: %v", ev.ChannelID, ev.Name, err)
	}
}

// pruneCleanupsLocked removes cleanup records older than the retention
// window and deletes their groups. Persist happens before the deletions; a
// missing group is logged and skipped, never retried.
func (s *Service) pruneCleanupsLocked(ctx context.Context, now time.Time) {
	cutoff := now.Add(-cleanupRetention)

	var kept []models.CleanupRecord
	var expired []models.CleanupRecord
	for _, rec := range s.state.FinishedGroups {
		if rec.FiredAt.Before(cutoff) {
			expired = append(expired, rec)
		} else {
			kept = append(kept, rec)
		}
	}
	if len(expired) == 0 {
		return
	}
	s.state.FinishedGroups = kept
	s.persistLocked()

	for _, rec := range expired {
		err := s.client.DeleteGroup(ctx, rec.CommunityID, rec.GroupID, "event cleanup after retention window")
		if err != nil {
			if errors.Is(err, platform.ErrGroupNotFound) {
				logger.Warningf("Group %d in community %d already gone, skipping cleanup", rec.GroupID, rec.CommunityID)
			} else {
				logger.Errorf("Failed to delete group %d in community %d: %v", rec.GroupID, rec.CommunityID, err)
			}
		}
	}
}
