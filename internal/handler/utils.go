package handler

import (
	"context"
	"time"

	"github.com/mymmrac/telego"
)

// timeNow is replaceable in tests.
var timeNow = time.Now

// getBotUsername retrieves the bot's username
func getBotUsername(ctx context.Context, bot *telego.Bot) (string, error) {
	botUser, err := bot.GetMe(ctx)
	if err != nil {
		return "", err
	}
	return botUser.Username, nil
}
