package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-eventbot/internal/crash"
	"tg-eventbot/internal/logger"
	"tg-eventbot/internal/models"
	"tg-eventbot/internal/scheduler"
	"tg-eventbot/internal/tz"
	"tg-eventbot/internal/wizard"
)

const helpText = `<b>Event commands</b>
/event create — start the event setup in a private chat
/event create &lt;name&gt; &lt;date&gt; &lt;time&gt; [am|pm] — create directly
/event delete &lt;name&gt; — remove an event (owner or admin)
/event join &lt;name&gt; — join an event's group
/event leave &lt;name&gt; — leave an event's group
/event info &lt;name&gt; — show one event
/event list [timezone] — list upcoming events
/event tz [timezone] — show or set your personal timezone
/event servertz [timezone] — show or set the community timezone (admin)
/event updateinfopost — refresh the upcoming-events post`

// handleEventCommand routes "/event <subcommand> ..." to its operation.
func handleEventCommand(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	parts := strings.Fields(message.Text)
	if len(parts) < 2 {
		return reply(ctx, bot, message.Chat.ID, helpText)
	}
	sub := strings.ToLower(parts[1])
	args := parts[2:]

	switch sub {
	case "create":
		return handleCreate(ctx, bot, message, args)
	case "delete":
		return handleDelete(ctx, bot, message, args)
	case "join":
		return handleJoin(ctx, bot, message, args)
	case "leave":
		return handleLeave(ctx, bot, message, args)
	case "info":
		return handleInfo(ctx, bot, message, args)
	case "list":
		return handleList(ctx, bot, message, args)
	case "tz":
		return handleUserTimezone(ctx, bot, message, args)
	case "servertz":
		return handleServerTimezone(ctx, bot, message, args)
	case "updateinfopost":
		return handleUpdateInfoPost(ctx, bot, message)
	default:
		return reply(ctx, bot, message.Chat.ID, helpText)
	}
}

func reply(ctx *th.Context, bot *telego.Bot, chatID int64, text string) error {
	_, err := bot.SendMessage(ctx.Context(), &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: chatID},
		Text:      text,
		ParseMode: "HTML",
	})
	return err
}

// requireCommunity rejects community-scoped subcommands issued outside a
// group chat.
func requireCommunity(ctx *th.Context, bot *telego.Bot, message telego.Message) bool {
	if message.Chat.Type == "private" {
		_ = reply(ctx, bot, message.Chat.ID, "Run this in your community's group chat so I know which community you mean.")
		return false
	}
	return true
}

func senderNickname(message telego.Message) string {
	name := message.From.FirstName
	if message.From.LastName != "" {
		name += " " + message.From.LastName
	}
	return name
}

func handleCreate(ctx *th.Context, bot *telego.Bot, message telego.Message, args []string) error {
	if !requireCommunity(ctx, bot, message) {
		return nil
	}
	communityID := message.Chat.ID
	userID := message.From.ID

	// Direct form: create <name> <date> <time> [am|pm]
	if len(args) >= 3 {
		return createDirect(ctx, bot, message, args)
	}
	if len(args) > 0 {
		return reply(ctx, bot, communityID,
			"To create directly, give me a name, a date and a time: <code>/event create party tomorrow 18:30</code>. Or run <code>/event create</code> with no arguments for the guided setup.")
	}

	if !wizards.TryBegin(userID) {
		return reply(ctx, bot, communityID, "You're already setting up an event — finish or cancel that one first.")
	}

	w := wizard.New(client, events, communityID, message.Chat.ID, userID, userID, senderNickname(message))
	crash.SafeGoroutine("wizard", func() {
		defer wizards.End(userID)
		if err := w.Run(context.Background()); err != nil {
			logger.Warningf("Wizard for user %d ended with error: %v", userID, err)
			// Most likely the user never opened a private chat with the bot.
			_, _ = bot.SendMessage(context.Background(), &telego.SendMessageParams{
				ChatID: telego.ChatID{ID: communityID},
				Text:   "I couldn't message you privately. Open a chat with me first, then run /event create again.",
			})
		}
	})
	return reply(ctx, bot, communityID, "Check your private messages — let's set up the event there.")
}

func createDirect(ctx *th.Context, bot *telego.Bot, message telego.Message, args []string) error {
	communityID := message.Chat.ID
	userID := message.From.ID
	name := args[0]
	whenInput := strings.Join(args[1:], " ")

	if _, exists := events.GetByName(communityID, name); exists {
		return reply(ctx, bot, communityID, fmt.Sprintf("There is already an event called <b>%s</b> here.", name))
	}

	loc := tz.Effective(events.UserTimezone(userID), events.CommunityTimezone(communityID))
	due, msg := wizard.ParseWhen(whenInput, timeNow(), loc)
	if msg != "" {
		return reply(ctx, bot, communityID, msg)
	}

	groupID, err := client.CreateGroup(ctx.Context(), communityID, name)
	if err != nil {
		logger.Errorf("Failed to create group for %q: %v", name, err)
		return reply(ctx, bot, communityID, "Something went wrong creating the event. Please try again later.")
	}
	if _, err := client.AddGroupMember(ctx.Context(), groupID, userID, senderNickname(message)); err != nil {
		logger.Warningf("Failed to add owner %d to group %d: %v", userID, groupID, err)
	}

	ev := &models.Event{
		Name:        name,
		Due:         due,
		CommunityID: communityID,
		ChannelID:   message.Chat.ID,
		OwnerID:     userID,
		GroupID:     groupID,
	}
	if err := events.Add(ctx.Context(), ev); err != nil {
		if derr := client.DeleteGroup(ctx.Context(), communityID, groupID, "event creation failed"); derr != nil {
			logger.Warningf("Failed to roll back group %d: %v", groupID, derr)
		}
		if err == scheduler.ErrDuplicateName {
			return reply(ctx, bot, communityID, fmt.Sprintf("There is already an event called <b>%s</b> here.", name))
		}
		logger.Errorf("Failed to add event %q: %v", name, err)
		return reply(ctx, bot, communityID, "Something went wrong saving the event. Please try again later.")
	}

	local := due.In(loc)
	return reply(ctx, bot, communityID, fmt.Sprintf("✅ <b>%s</b> is scheduled for %s %s. Join it with /event join %s.",
		name, local.Format("Monday, Jan 2 2006 15:04"), local.Format("MST"), name))
}

func handleDelete(ctx *th.Context, bot *telego.Bot, message telego.Message, args []string) error {
	if !requireCommunity(ctx, bot, message) {
		return nil
	}
	if len(args) == 0 {
		return reply(ctx, bot, message.Chat.ID, "Which event? <code>/event delete &lt;name&gt;</code>")
	}
	communityID := message.Chat.ID
	name := strings.Join(args, " ")

	ev, ok := events.GetByName(communityID, name)
	if !ok {
		return reply(ctx, bot, communityID, fmt.Sprintf("No event called <b>%s</b> here.", name))
	}

	if ev.OwnerID != message.From.ID {
		isStaff, err := client.IsStaff(ctx.Context(), communityID, message.From.ID)
		if err != nil {
			logger.Warningf("Staff check failed in community %d: %v", communityID, err)
		}
		if !isStaff {
			return reply(ctx, bot, communityID, "Only the event owner or a community admin can delete it.")
		}
	}

	if _, err := events.DeleteByName(ctx.Context(), communityID, name); err != nil {
		logger.Errorf("Failed to delete event %q: %v", name, err)
		return reply(ctx, bot, communityID, "Something went wrong deleting the event.")
	}
	return reply(ctx, bot, communityID, fmt.Sprintf("🗑 <b>%s</b> was removed.", ev.Name))
}

func handleJoin(ctx *th.Context, bot *telego.Bot, message telego.Message, args []string) error {
	if !requireCommunity(ctx, bot, message) {
		return nil
	}
	if len(args) == 0 {
		return reply(ctx, bot, message.Chat.ID, "Which event? <code>/event join &lt;name&gt;</code>")
	}
	communityID := message.Chat.ID
	name := strings.Join(args, " ")

	changed, found, err := events.AddParticipant(ctx.Context(), communityID, message.From.ID, name, senderNickname(message))
	if err != nil {
		logger.Errorf("Failed to join event %q: %v", name, err)
		return reply(ctx, bot, communityID, "Something went wrong, try again later.")
	}
	if !found {
		return reply(ctx, bot, communityID, fmt.Sprintf("No event called <b>%s</b> here.", name))
	}
	if !changed {
		return reply(ctx, bot, communityID, fmt.Sprintf("You're already signed up for <b>%s</b>.", name))
	}
	return reply(ctx, bot, communityID, fmt.Sprintf("✅ You're signed up for <b>%s</b>. I'll tag you when it starts.", name))
}

func handleLeave(ctx *th.Context, bot *telego.Bot, message telego.Message, args []string) error {
	if !requireCommunity(ctx, bot, message) {
		return nil
	}
	if len(args) == 0 {
		return reply(ctx, bot, message.Chat.ID, "Which event? <code>/event leave &lt;name&gt;</code>")
	}
	communityID := message.Chat.ID
	name := strings.Join(args, " ")

	changed, found, err := events.RemoveParticipant(ctx.Context(), communityID, message.From.ID, name)
	if err != nil {
		logger.Errorf("Failed to leave event %q: %v", name, err)
		return reply(ctx, bot, communityID, "Something went wrong, try again later.")
	}
	if !found {
		return reply(ctx, bot, communityID, fmt.Sprintf("No event called <b>%s</b> here.", name))
	}
	if !changed {
		return reply(ctx, bot, communityID, fmt.Sprintf("You weren't signed up for <b>%s</b>.", name))
	}
	return reply(ctx, bot, communityID, fmt.Sprintf("You've left <b>%s</b>.", name))
}

func handleInfo(ctx *th.Context, bot *telego.Bot, message telego.Message, args []string) error {
	if !requireCommunity(ctx, bot, message) {
		return nil
	}
	if len(args) == 0 {
		return reply(ctx, bot, message.Chat.ID, "Which event? <code>/event info &lt;name&gt;</code>")
	}
	communityID := message.Chat.ID
	name := strings.Join(args, " ")

	ev, ok := events.GetByName(communityID, name)
	if !ok {
		return reply(ctx, bot, communityID, fmt.Sprintf("No event called <b>%s</b> here.", name))
	}

	loc := tz.Effective(events.UserTimezone(message.From.ID), events.CommunityTimezone(communityID))
	local := ev.Due.In(loc)
	owner := client.DisplayName(ctx.Context(), ev.OwnerID)

	text := fmt.Sprintf("<b>%s</b>\n%s %s\nHosted by %s", ev.Name,
		local.Format("Monday, Jan 2 2006 15:04"), local.Format("MST"), owner)
	if ev.Description != "" {
		text += "\n\n" + ev.Description
	}

	keyboard := &telego.InlineKeyboardMarkup{
		InlineKeyboard: [][]telego.InlineKeyboardButton{{
			{Text: "Join", CallbackData: fmt.Sprintf("evjoin:%d:%d", communityID, ev.GroupID)},
			{Text: "Leave", CallbackData: fmt.Sprintf("evleave:%d:%d", communityID, ev.GroupID)},
		}},
	}
	_, err := bot.SendMessage(ctx.Context(), &telego.SendMessageParams{
		ChatID:      telego.ChatID{ID: communityID},
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: keyboard,
	})
	return err
}

func handleList(ctx *th.Context, bot *telego.Bot, message telego.Message, args []string) error {
	if !requireCommunity(ctx, bot, message) {
		return nil
	}
	communityID := message.Chat.ID

	loc := tz.Effective(events.UserTimezone(message.From.ID), events.CommunityTimezone(communityID))
	if len(args) > 0 {
		zone, ok := tz.Resolve(strings.Join(args, " "))
		if !ok {
			return reply(ctx, bot, communityID, fmt.Sprintf("I don't know the timezone <code>%s</code>. Try an IANA name like <code>Europe/Berlin</code> or a code like <code>PT</code>.", strings.Join(args, " ")))
		}
		loc = tz.Effective(zone, "")
	}

	list := events.Events(communityID)
	if len(list) == 0 {
		return reply(ctx, bot, communityID, "No upcoming events. Start one with /event create.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Upcoming events</b> (times in %s)\n", loc.String())
	for i, ev := range list {
		local := ev.Due.In(loc)
		fmt.Fprintf(&b, "\n%d. <b>%s</b> — %s %s", i+1, ev.Name,
			local.Format("Mon, Jan 2 2006 15:04"), local.Format("MST"))
	}
	return reply(ctx, bot, communityID, b.String())
}

func handleUserTimezone(ctx *th.Context, bot *telego.Bot, message telego.Message, args []string) error {
	userID := message.From.ID
	chatID := message.Chat.ID

	if len(args) == 0 {
		override := events.UserTimezone(userID)
		if override == "" {
			return reply(ctx, bot, chatID, "You have no personal timezone set; community defaults apply. Set one with <code>/event tz &lt;timezone&gt;</code>.")
		}
		return reply(ctx, bot, chatID, fmt.Sprintf("Your timezone is <b>%s</b> (%s).", override, tz.Abbreviation(override, timeNow())))
	}

	zone, ok := tz.Resolve(strings.Join(args, " "))
	if !ok {
		return reply(ctx, bot, chatID, fmt.Sprintf("I don't know the timezone <code>%s</code>. Try an IANA name like <code>Europe/Berlin</code> or a code like <code>PT</code>.", strings.Join(args, " ")))
	}
	events.SetUserTimezone(userID, zone)
	return reply(ctx, bot, chatID, fmt.Sprintf("Your timezone is now <b>%s</b> (%s).", zone, tz.Abbreviation(zone, timeNow())))
}

func handleServerTimezone(ctx *th.Context, bot *telego.Bot, message telego.Message, args []string) error {
	if !requireCommunity(ctx, bot, message) {
		return nil
	}
	communityID := message.Chat.ID

	if len(args) == 0 {
		zone := events.CommunityTimezone(communityID)
		if zone == "" {
			return reply(ctx, bot, communityID, "No community timezone set; the server default applies. Admins can set one with <code>/event servertz &lt;timezone&gt;</code>.")
		}
		return reply(ctx, bot, communityID, fmt.Sprintf("The community timezone is <b>%s</b> (%s).", zone, tz.Abbreviation(zone, timeNow())))
	}

	isStaff, err := client.IsStaff(ctx.Context(), communityID, message.From.ID)
	if err != nil {
		logger.Warningf("Staff check failed in community %d: %v", communityID, err)
		return reply(ctx, bot, communityID, "I couldn't verify your permissions, try again later.")
	}
	if !isStaff {
		return reply(ctx, bot, communityID, "Only community admins can change the community timezone.")
	}

	zone, ok := tz.Resolve(strings.Join(args, " "))
	if !ok {
		return reply(ctx, bot, communityID, fmt.Sprintf("I don't know the timezone <code>%s</code>. Try an IANA name like <code>Europe/Berlin</code> or a code like <code>PT</code>.", strings.Join(args, " ")))
	}
	events.SetCommunityTimezone(communityID, zone)
	return reply(ctx, bot, communityID, fmt.Sprintf("The community timezone is now <b>%s</b> (%s).", zone, tz.Abbreviation(zone, timeNow())))
}

func handleUpdateInfoPost(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	if !requireCommunity(ctx, bot, message) {
		return nil
	}
	events.UpdateDigest(ctx.Context(), message.Chat.ID)
	return nil
}
