package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"tg-eventbot/internal/logger"
	"tg-eventbot/internal/models"
	"tg-eventbot/internal/platform"
	"tg-eventbot/internal/storage"
)

// Client implements platform.Client on top of telego. Membership groups are
// named participant sets kept in the GroupManager and mirrored to the
// database when it is enabled; Telegram itself has no role concept.
type Client struct {
	bot     *telego.Bot
	groups  *models.GroupManager
	repo    *storage.GroupRepository // nil when database disabled
	replies *ReplyRouter
}

// NewClient builds the adapter and loads persisted groups into the cache.
func NewClient(bot *telego.Bot) (*Client, error) {
	manager := models.NewGroupManager()
	var repo *storage.GroupRepository
	if storage.DB != nil {
		repo = storage.NewGroupRepository(storage.DB)
		if err := repo.MigrateTable(); err != nil {
			logger.Warningf("Error migrating group tables: %v", err)
		}
		if err := storage.InitializeGroups(manager); err != nil {
			return nil, fmt.Errorf("failed to load groups: %w", err)
		}
	}
	return &Client{
		bot:     bot,
		groups:  manager,
		repo:    repo,
		replies: NewReplyRouter(),
	}, nil
}

// Replies exposes the router so the message handler can feed it.
func (c *Client) Replies() *ReplyRouter {
	return c.replies
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (models.MessageRef, error) {
	msg, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: chatID},
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return models.MessageRef{}, err
	}
	return models.MessageRef{ChatID: chatID, MessageID: msg.MessageID}, nil
}

func (c *Client) EditMessage(ctx context.Context, ref models.MessageRef, text string) error {
	_, err := c.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    telego.ChatID{ID: ref.ChatID},
		MessageID: ref.MessageID,
		Text:      text,
		ParseMode: "HTML",
	})
	return err
}

func (c *Client) CreateGroup(ctx context.Context, communityID int64, name string) (int64, error) {
	group := c.groups.NewGroup(communityID, name)
	if c.repo != nil {
		if err := c.repo.CreateGroup(group); err != nil {
			logger.Warningf("Error saving group %d to database: %v", group.GroupID, err)
		}
	}
	logger.Infof("Created membership group %d (%s) for community %d", group.GroupID, name, communityID)
	return group.GroupID, nil
}

func (c *Client) DeleteGroup(ctx context.Context, communityID, groupID int64, reason string) error {
	group := c.groups.GetGroup(groupID)
	if group == nil {
		return platform.ErrGroupNotFound
	}
	c.groups.RemoveGroup(groupID)
	if c.repo != nil {
		if err := c.repo.DeleteGroup(groupID); err != nil {
			logger.Warningf("Error deleting group %d from database: %v", groupID, err)
		}
	}
	logger.Infof("Deleted membership group %d (%s) in community %d: %s", groupID, group.Name, communityID, reason)
	return nil
}

func (c *Client) AddGroupMember(ctx context.Context, groupID, userID int64, nickname string) (bool, error) {
	if c.groups.GetGroup(groupID) == nil {
		return false, platform.ErrGroupNotFound
	}
	member := &models.GroupMember{GroupID: groupID, UserID: userID, Nickname: nickname, CreatedAt: time.Now()}
	if !c.groups.AddMember(member) {
		return false, nil
	}
	if c.repo != nil {
		if err := c.repo.AddMember(member); err != nil {
			logger.Warningf("Error saving member %d of group %d: %v", userID, groupID, err)
		}
	}
	return true, nil
}

func (c *Client) RemoveGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	if c.groups.GetGroup(groupID) == nil {
		return false, platform.ErrGroupNotFound
	}
	if !c.groups.RemoveMember(groupID, userID) {
		return false, nil
	}
	if c.repo != nil {
		if err := c.repo.RemoveMember(groupID, userID); err != nil {
			logger.Warningf("Error removing member %d of group %d: %v", userID, groupID, err)
		}
	}
	return true, nil
}

func (c *Client) IsGroupMember(groupID, userID int64) bool {
	return c.groups.HasMember(groupID, userID)
}

func (c *Client) GroupMention(groupID int64) (string, error) {
	if c.groups.GetGroup(groupID) == nil {
		return "", platform.ErrGroupNotFound
	}
	members := c.groups.Members(groupID)
	if len(members) == 0 {
		return "", nil
	}
	tags := make([]string, len(members))
	for i, m := range members {
		tags[i] = m.MentionTag()
	}
	return strings.Join(tags, " "), nil
}

func (c *Client) DisplayName(ctx context.Context, userID int64) string {
	userInfo, err := c.bot.GetChat(ctx, &telego.GetChatParams{
		ChatID: telego.ChatID{ID: userID},
	})
	if err != nil {
		logger.Warningf("Error getting user info for %d: %v", userID, err)
		return fmt.Sprintf("user %d", userID)
	}
	name := userInfo.FirstName
	if userInfo.LastName != "" {
		name += " " + userInfo.LastName
	}
	return name
}

// IsStaff checks if a user is an admin in the community chat.
func (c *Client) IsStaff(ctx context.Context, communityID, userID int64) (bool, error) {
	admins, err := c.bot.GetChatAdministrators(ctx, &telego.GetChatAdministratorsParams{
		ChatID: telego.ChatID{ID: communityID},
	})
	if err != nil {
		return false, err
	}
	for _, admin := range admins {
		if admin.MemberUser().ID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) AwaitReply(ctx context.Context, chatID, userID int64, timeout time.Duration) (string, error) {
	return c.replies.Await(ctx, chatID, userID, timeout)
}
