package handler

import (
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-eventbot/internal/logger"
)

// HandleCallbackQuery reacts to the Join/Leave buttons attached to event
// info posts. Callback data is "evjoin:<communityID>:<groupID>" or
// "evleave:<communityID>:<groupID>".
func HandleCallbackQuery(ctx *th.Context, bot *telego.Bot, query telego.CallbackQuery) error {
	action, _, groupID, ok := parseCallbackData(query.Data)
	if !ok {
		return answerCallback(ctx, bot, query.ID, "")
	}

	userID := query.From.ID
	nickname := query.From.FirstName
	if query.From.LastName != "" {
		nickname += " " + query.From.LastName
	}

	switch action {
	case "evjoin":
		changed, err := client.AddGroupMember(ctx.Context(), groupID, userID, nickname)
		if err != nil {
			logger.Warningf("Join via button failed for user %d group %d: %v", userID, groupID, err)
			return answerCallback(ctx, bot, query.ID, "That event is gone.")
		}
		if !changed {
			return answerCallback(ctx, bot, query.ID, "You're already signed up.")
		}
		return answerCallback(ctx, bot, query.ID, "You're signed up! I'll tag you when it starts.")
	case "evleave":
		changed, err := client.RemoveGroupMember(ctx.Context(), groupID, userID)
		if err != nil {
			logger.Warningf("Leave via button failed for user %d group %d: %v", userID, groupID, err)
			return answerCallback(ctx, bot, query.ID, "That event is gone.")
		}
		if !changed {
			return answerCallback(ctx, bot, query.ID, "You weren't signed up.")
		}
		return answerCallback(ctx, bot, query.ID, "You've left the event.")
	}
	return answerCallback(ctx, bot, query.ID, "")
}

// parseCallbackData splits "action:communityID:groupID".
func parseCallbackData(data string) (action string, communityID, groupID int64, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return "", 0, 0, false
	}
	if parts[0] != "evjoin" && parts[0] != "evleave" {
		return "", 0, 0, false
	}
	var err error
	communityID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, 0, false
	}
	groupID, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, 0, false
	}
	return parts[0], communityID, groupID, true
}

func answerCallback(ctx *th.Context, bot *telego.Bot, queryID, text string) error {
	return bot.AnswerCallbackQuery(ctx.Context(), &telego.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
	})
}
