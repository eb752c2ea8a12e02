package scheduler

import (
	"context"
	"fmt"
	"strings"

	"tg-eventbot/internal/logger"
	"tg-eventbot/internal/tz"
)

// UpdateDigest recomposes the community's standing "upcoming events"
// message.
func (s *Service) UpdateDigest(ctx context.Context, communityID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateDigestLocked(ctx, communityID)
}

// updateDigestLocked is an idempotent upsert keyed by community: the digest
// is edited in place when a reference exists, otherwise posted once and its
// reference persisted.
func (s *Service) updateDigestLocked(ctx context.Context, communityID int64) {
	text := s.renderDigestLocked(ctx, communityID)

	ref := s.state.DigestMessages[communityID]
	if !ref.IsZero() {
		if err := s.client.EditMessage(ctx, ref, text); err != nil {
			logger.Errorf("Failed to edit digest for community %d: %v", communityID, err)
		}
		return
	}

	newRef, err := s.client.SendMessage(ctx, communityID, text)
	if err != nil {
		logger.Errorf("Failed to post digest for community %d: %v", communityID, err)
		return
	}
	s.state.DigestMessages[communityID] = newRef
	s.persistLocked()
}

// renderDigestLocked lists up to digestLimit soonest events with name,
// owner, channel and the due time localized to the community default
// timezone.
func (s *Service) renderDigestLocked(ctx context.Context, communityID int64) string {
	events := s.state.Events[communityID]
	if len(events) == 0 {
		return "📅 <b>Upcoming events</b>\n\nNo upcoming events scheduled."
	}

	zone := s.state.GuildDefaultTimezones[communityID]
	loc := tz.Effective("", zone)

	var b strings.Builder
	b.WriteString("📅 <b>Upcoming events</b>\n")
	count := len(events)
	if count > digestLimit {
		count = digestLimit
	}
	for i := 0; i < count; i++ {
		ev := events[i]
		due := ev.Due.In(loc)
		owner := s.client.DisplayName(ctx, ev.OwnerID)
		fmt.Fprintf(&b, "\n%d. <b>%s</b> — %s %s — hosted by %s",
			i+1, ev.Name,
			due.Format("Mon, Jan 2 2006 15:04"), due.Format("MST"),
			owner)
		if ev.ChannelID != communityID {
			fmt.Fprintf(&b, " — in topic %d", ev.ChannelID)
		}
		if ev.Description != "" {
			fmt.Fprintf(&b, "\n   %s", ev.Description)
		}
	}
	if len(events) > digestLimit {
		fmt.Fprintf(&b, "\n\n…and %d more. Use /event list to see everything.", len(events)-digestLimit)
	}
	return b.String()
}
