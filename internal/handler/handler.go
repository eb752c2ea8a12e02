package handler

import (
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-eventbot/internal/logger"
	"tg-eventbot/internal/platform/telegram"
	"tg-eventbot/internal/scheduler"
	"tg-eventbot/internal/wizard"
)

var (
	events  *scheduler.Service
	client  *telegram.Client
	wizards = wizard.NewManager()
)

// Initialize wires the handler package with its collaborators.
func Initialize(svc *scheduler.Service, cl *telegram.Client) {
	events = svc
	client = cl
}

// SetupMessageHandlers configures all bot message and update handlers
func SetupMessageHandlers(bh *th.BotHandler, bot *telego.Bot) {
	bh.HandleMessage(func(ctx *th.Context, message telego.Message) error {
		// Skip if no sender information or sender is a bot
		if message.From == nil || message.From.IsBot {
			return nil
		}

		// Private messages feed a pending wizard turn first; only
		// unconsumed ones fall through to command handling.
		if message.Chat.Type == "private" {
			if client.Replies().Dispatch(message.Chat.ID, message.From.ID, message.Text) {
				return nil
			}
		}

		if isEventCommand(ctx, bot, message.Text) {
			return handleEventCommand(ctx, bot, message)
		}
		return nil
	})

	bh.HandleCallbackQuery(func(ctx *th.Context, query telego.CallbackQuery) error {
		return HandleCallbackQuery(ctx, bot, query)
	})
}

// isEventCommand matches "/event ..." including the "/event@BotName" form
// used in group chats.
func isEventCommand(ctx *th.Context, bot *telego.Bot, text string) bool {
	if !strings.HasPrefix(text, "/event") {
		return false
	}
	rest := strings.TrimPrefix(text, "/event")
	if rest == "" || rest[0] == ' ' {
		return true
	}
	if rest[0] != '@' {
		return false
	}
	username, err := getBotUsername(ctx.Context(), bot)
	if err != nil {
		logger.Warningf("Failed to resolve bot username: %v", err)
		return false
	}
	mention := "@" + username
	return strings.HasPrefix(rest, mention) &&
		(len(rest) == len(mention) || rest[len(mention)] == ' ')
}
