// Package platform defines the chat-platform surface the scheduler and
// wizard depend on. The telegram subpackage implements it; tests substitute
// fakes.
package platform

import (
	"context"
	"errors"
	"time"

	"tg-eventbot/internal/models"
)

var (
	// ErrReplyTimeout is returned by AwaitReply when the user never answered.
	ErrReplyTimeout = errors.New("timed out waiting for a reply")

	// ErrReplyPending is returned when a reply wait is already registered
	// for the same user and chat.
	ErrReplyPending = errors.New("another reply wait is already pending")

	// ErrGroupNotFound is returned for operations on a vanished group.
	ErrGroupNotFound = errors.New("membership group not found")
)

// Client is everything the bot needs from the chat platform.
type Client interface {
	// SendMessage posts an HTML-formatted message and returns its handle.
	SendMessage(ctx context.Context, chatID int64, text string) (models.MessageRef, error)

	// EditMessage replaces the text of a previously posted message.
	EditMessage(ctx context.Context, ref models.MessageRef, text string) error

	// CreateGroup creates a membership group for an event and returns its ID.
	CreateGroup(ctx context.Context, communityID int64, name string) (int64, error)

	// DeleteGroup removes a group, recording the audit reason. Returns
	// ErrGroupNotFound when the group already vanished.
	DeleteGroup(ctx context.Context, communityID, groupID int64, reason string) error

	// AddGroupMember adds a user to a group. Returns false when the user was
	// already a member.
	AddGroupMember(ctx context.Context, groupID, userID int64, nickname string) (bool, error)

	// RemoveGroupMember removes a user from a group. Returns false when the
	// user was not a member.
	RemoveGroupMember(ctx context.Context, groupID, userID int64) (bool, error)

	// IsGroupMember reports current membership.
	IsGroupMember(groupID, userID int64) bool

	// GroupMention renders the tag that notifies every member of the group.
	GroupMention(groupID int64) (string, error)

	// DisplayName resolves a user's display name.
	DisplayName(ctx context.Context, userID int64) string

	// IsStaff reports whether the user holds staff permissions in the
	// community.
	IsStaff(ctx context.Context, communityID, userID int64) (bool, error)

	// AwaitReply blocks until the user's next message in the chat, the
	// timeout elapses (ErrReplyTimeout) or ctx is canceled.
	AwaitReply(ctx context.Context, chatID, userID int64, timeout time.Duration) (string, error)
}
