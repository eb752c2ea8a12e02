package models

import (
	"strings"
	"time"
)

// Event represents one scheduled happening inside a community.
// Due is always stored normalized to UTC; rendering localizes it.
type Event struct {
	Name        string    `json:"name"`
	Due         time.Time `json:"due"`
	CommunityID int64     `json:"communityId"`
	ChannelID   int64     `json:"channelId"`
	OwnerID     int64     `json:"ownerId"`
	GroupID     int64     `json:"groupId"`
	Description string    `json:"description,omitempty"`
}

// NameEquals compares event names the way the bot treats them: case-insensitive.
func (e *Event) NameEquals(name string) bool {
	return strings.EqualFold(e.Name, name)
}

// IsDue reports whether the event should fire at the given instant.
func (e *Event) IsDue(now time.Time) bool {
	return !e.Due.After(now)
}

// CleanupRecord represents a membership group awaiting deletion after its
// event fired. Records are kept for a retention window so late joiners can
// still see who attended, then the group is removed.
type CleanupRecord struct {
	CommunityID int64     `json:"communityId"`
	GroupID     int64     `json:"groupId"`
	FiredAt     time.Time `json:"firedAt"`
}

// MessageRef is an opaque handle to a previously posted message, used to
// edit the community digest in place instead of reposting it.
type MessageRef struct {
	ChatID    int64 `json:"chatId"`
	MessageID int   `json:"messageId"`
}

// IsZero reports whether the reference points at no message.
func (r MessageRef) IsZero() bool {
	return r.ChatID == 0 && r.MessageID == 0
}
