// Package wizard implements the private, turn-based dialogue that collects
// a new event's fields from a single user. It is an explicit state machine:
// each state sends one prompt, waits for exactly one reply with a bounded
// timeout, and either advances, loops on invalid input, or aborts.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tg-eventbot/internal/logger"
	"tg-eventbot/internal/models"
	"tg-eventbot/internal/platform"
	"tg-eventbot/internal/scheduler"
	"tg-eventbot/internal/tz"
)

type step int

const (
	stepName step = iota
	stepDateTime
	stepDateConfirm
	stepDescriptionChoice
	stepDescriptionEntry
	stepDescriptionConfirm
	stepFinalConfirm
	stepCommit
	stepAborted
)

const (
	replyTimeout   = 60 * time.Second
	confirmTimeout = 30 * time.Second

	// minLead is how far in the future an event must start.
	minLead = time.Minute
)

var (
	errCanceled = errors.New("wizard canceled by user")
	errTimedOut = errors.New("wizard reply wait timed out")
)

// Wizard drives one event creation dialogue. It never mutates shared state
// directly; on confirmation it submits the finished event through the
// scheduler.
type Wizard struct {
	client platform.Client
	events *scheduler.Service

	communityID int64
	channelID   int64
	userID      int64
	chatID      int64 // private chat the dialogue runs in
	nickname    string

	loc *time.Location

	name        string
	due         time.Time // UTC
	description string

	// now is replaceable in tests.
	now func() time.Time
}

// New prepares a wizard for one user. chatID is the private chat where the
// dialogue happens; channelID is where the event will announce.
func New(client platform.Client, events *scheduler.Service, communityID, channelID, userID, chatID int64, nickname string) *Wizard {
	return &Wizard{
		client:      client,
		events:      events,
		communityID: communityID,
		channelID:   channelID,
		userID:      userID,
		chatID:      chatID,
		nickname:    nickname,
		now:         time.Now,
	}
}

// Run executes the dialogue to completion. It returns nil both on success
// and on a user-visible abort (cancel, timeout, declined confirmation); the
// user has already been told what happened.
func (w *Wizard) Run(ctx context.Context) error {
	w.loc = tz.Effective(w.events.UserTimezone(w.userID), w.events.CommunityTimezone(w.communityID))

	intro := fmt.Sprintf(
		"Let's set up a new event. Times are interpreted in <b>%s</b> (%s). Reply <code>cancel</code> at any point to stop.\n\nWhat should the event be called?",
		w.loc.String(), w.now().In(w.loc).Format("MST"))
	if _, err := w.client.SendMessage(ctx, w.chatID, intro); err != nil {
		return err
	}

	current := stepName
	for current != stepCommit && current != stepAborted {
		next, err := w.advance(ctx, current)
		if err != nil {
			return w.abort(ctx, err)
		}
		current = next
	}
	if current == stepAborted {
		return nil
	}
	return w.commit(ctx)
}

// advance runs one state: waits for the pending reply and maps (state,
// input) to the next state, sending prompts along the way.
func (w *Wizard) advance(ctx context.Context, current step) (step, error) {
	switch current {
	case stepName:
		return w.stateName(ctx)
	case stepDateTime:
		return w.stateDateTime(ctx)
	case stepDateConfirm:
		return w.stateDateConfirm(ctx)
	case stepDescriptionChoice:
		return w.stateDescriptionChoice(ctx)
	case stepDescriptionEntry:
		return w.stateDescriptionEntry(ctx)
	case stepDescriptionConfirm:
		return w.stateDescriptionConfirm(ctx)
	case stepFinalConfirm:
		return w.stateFinalConfirm(ctx)
	default:
		return stepAborted, fmt.Errorf("unknown wizard step %d", current)
	}
}

// await waits for the user's next reply, translating cancel and timeouts
// into wizard errors.
func (w *Wizard) await(ctx context.Context, timeout time.Duration) (string, error) {
	reply, err := w.client.AwaitReply(ctx, w.chatID, w.userID, timeout)
	if err != nil {
		if errors.Is(err, platform.ErrReplyTimeout) {
			return "", errTimedOut
		}
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if strings.EqualFold(reply, "cancel") {
		return "", errCanceled
	}
	return reply, nil
}

func (w *Wizard) say(ctx context.Context, format string, args ...interface{}) {
	if _, err := w.client.SendMessage(ctx, w.chatID, fmt.Sprintf(format, args...)); err != nil {
		logger.Warningf("Wizard failed to message user %d: %v", w.userID, err)
	}
}

func (w *Wizard) stateName(ctx context.Context) (step, error) {
	for {
		reply, err := w.await(ctx, replyTimeout)
		if err != nil {
			return stepAborted, err
		}
		if reply == "" {
			continue
		}
		if _, exists := w.events.GetByName(w.communityID, reply); exists {
			w.say(ctx, "There is already an event called <b>%s</b> here. Pick another name.", reply)
			continue
		}
		w.name = reply
		w.say(ctx, "When does <b>%s</b> start? Send a date and time, like <code>tomorrow 18:30</code> or <code>2026-09-12 7:00 pm</code>.", w.name)
		return stepDateTime, nil
	}
}

func (w *Wizard) stateDateTime(ctx context.Context) (step, error) {
	for {
		reply, err := w.await(ctx, replyTimeout)
		if err != nil {
			return stepAborted, err
		}
		due, msg := w.parseDateTime(reply)
		if msg != "" {
			w.say(ctx, "%s", msg)
			continue
		}
		w.due = due
		local := w.due.In(w.loc)
		w.say(ctx, "So that's <b>%s %s</b> — correct? (yes/no)", local.Format("Monday, Jan 2 2006 15:04"), local.Format("MST"))
		return stepDateConfirm, nil
	}
}

// parseDateTime parses the user's reply, re-evaluated against the current
// clock.
func (w *Wizard) parseDateTime(reply string) (time.Time, string) {
	return ParseWhen(reply, w.now(), w.loc)
}

// ParseWhen parses "<date> <time> [am|pm]" into an absolute UTC instant.
// The date may itself contain spaces ("Jan 2, 2026"). Instead of an error
// it returns a corrective message for the user, empty on success, so
// callers re-prompt without losing other fields. The same parser backs the
// wizard and the direct /event create form.
func ParseWhen(reply string, now time.Time, loc *time.Location) (time.Time, string) {
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return time.Time{}, "Send a date and a time, like <code>tomorrow 18:30</code>."
	}

	meridiem := ""
	last := strings.ToLower(fields[len(fields)-1])
	if last == "am" || last == "pm" {
		meridiem = last
		fields = fields[:len(fields)-1]
	}
	if len(fields) < 2 {
		return time.Time{}, "I need both a date and a time, like <code>tomorrow 18:30</code>."
	}

	clockToken := fields[len(fields)-1]
	dateToken := strings.Join(fields[:len(fields)-1], " ")

	date, err := tz.ParseDate(dateToken, now, loc)
	if err != nil {
		return time.Time{}, fmt.Sprintf("I couldn't understand the date <code>%s</code>. Try <code>today</code>, <code>tomorrow</code> or <code>2026-09-12</code>.", dateToken)
	}
	hour, minute, err := tz.ParseClock(clockToken)
	if err != nil {
		return time.Time{}, fmt.Sprintf("I couldn't understand the time <code>%s</code>. Use <code>HH:mm</code>, like <code>18:30</code>.", clockToken)
	}
	if meridiem != "" {
		hour, err = tz.ApplyMeridiem(hour, meridiem)
		if err != nil {
			return time.Time{}, fmt.Sprintf("<code>%s %s</code> doesn't work as a time. Use a 12-hour clock with am/pm, or a 24-hour clock without.", clockToken, meridiem)
		}
	}

	due := tz.Combine(date, hour, minute, loc)
	if !due.After(now.Add(minLead)) {
		return time.Time{}, "That time is already past (or less than a minute away). Send a later date and time."
	}
	return due, ""
}

func (w *Wizard) stateDateConfirm(ctx context.Context) (step, error) {
	for {
		reply, err := w.await(ctx, confirmTimeout)
		if err != nil {
			return stepAborted, err
		}
		switch strings.ToLower(reply) {
		case "yes", "y":
			w.say(ctx, "Would you like to add a description? (yes/no)")
			return stepDescriptionChoice, nil
		case "no", "n":
			w.say(ctx, "Okay, send the date and time again.")
			return stepDateTime, nil
		default:
			w.say(ctx, "Please answer <code>yes</code> or <code>no</code>.")
		}
	}
}

func (w *Wizard) stateDescriptionChoice(ctx context.Context) (step, error) {
	for {
		reply, err := w.await(ctx, confirmTimeout)
		if err != nil {
			return stepAborted, err
		}
		switch strings.ToLower(reply) {
		case "yes", "y":
			w.say(ctx, "Send the description now (or <code>none</code> to skip).")
			return stepDescriptionEntry, nil
		case "no", "n":
			return w.promptFinal(ctx), nil
		default:
			w.say(ctx, "Please answer <code>yes</code> or <code>no</code>.")
		}
	}
}

func (w *Wizard) stateDescriptionEntry(ctx context.Context) (step, error) {
	for {
		reply, err := w.await(ctx, replyTimeout)
		if err != nil {
			return stepAborted, err
		}
		if reply == "" {
			continue
		}
		if strings.EqualFold(reply, "none") {
			w.description = ""
			return w.promptFinal(ctx), nil
		}
		w.description = reply
		w.say(ctx, "Description:\n<i>%s</i>\nKeep it? (yes/no)", w.description)
		return stepDescriptionConfirm, nil
	}
}

func (w *Wizard) stateDescriptionConfirm(ctx context.Context) (step, error) {
	for {
		reply, err := w.await(ctx, confirmTimeout)
		if err != nil {
			return stepAborted, err
		}
		switch strings.ToLower(reply) {
		case "yes", "y":
			return w.promptFinal(ctx), nil
		case "no", "n":
			w.say(ctx, "Send the description again (or <code>none</code> to skip).")
			return stepDescriptionEntry, nil
		default:
			w.say(ctx, "Please answer <code>yes</code> or <code>no</code>.")
		}
	}
}

func (w *Wizard) promptFinal(ctx context.Context) step {
	local := w.due.In(w.loc)
	summary := fmt.Sprintf("Here's the event:\n\n<b>%s</b>\n%s %s",
		w.name, local.Format("Monday, Jan 2 2006 15:04"), local.Format("MST"))
	if w.description != "" {
		summary += "\n<i>" + w.description + "</i>"
	}
	summary += "\n\nCreate it? (yes/no)"
	w.say(ctx, "%s", summary)
	return stepFinalConfirm
}

func (w *Wizard) stateFinalConfirm(ctx context.Context) (step, error) {
	for {
		reply, err := w.await(ctx, confirmTimeout)
		if err != nil {
			return stepAborted, err
		}
		switch strings.ToLower(reply) {
		case "yes", "y":
			return stepCommit, nil
		case "no", "n":
			w.say(ctx, "Okay, nothing was created. Run /event create to start over.")
			return stepAborted, nil
		default:
			w.say(ctx, "Please answer <code>yes</code> or <code>no</code>.")
		}
	}
}

// commit creates the membership group, adds the owner and submits the event.
// The due instant is validated again here: validation at parse time goes
// stale while the user idles on the confirmation prompts.
func (w *Wizard) commit(ctx context.Context) error {
	if !w.due.After(w.now().Add(minLead)) {
		w.say(ctx, "Too much time passed — <b>%s</b> would already have started. Run /event create again.", w.name)
		return nil
	}

	groupID, err := w.client.CreateGroup(ctx, w.communityID, w.name)
	if err != nil {
		logger.Errorf("Wizard failed to create group for %q: %v", w.name, err)
		w.say(ctx, "Something went wrong creating the event. Please try again later.")
		return err
	}
	if _, err := w.client.AddGroupMember(ctx, groupID, w.userID, w.nickname); err != nil {
		logger.Warningf("Wizard failed to add owner %d to group %d: %v", w.userID, groupID, err)
	}

	ev := &models.Event{
		Name:        w.name,
		Due:         w.due,
		CommunityID: w.communityID,
		ChannelID:   w.channelID,
		OwnerID:     w.userID,
		GroupID:     groupID,
		Description: w.description,
	}
	if err := w.events.Add(ctx, ev); err != nil {
		if errors.Is(err, scheduler.ErrDuplicateName) {
			// Lost a race against another creation since the name check.
			w.say(ctx, "An event called <b>%s</b> was created in the meantime. Pick a different name and try again.", w.name)
		} else {
			w.say(ctx, "Something went wrong saving the event. Please try again later.")
		}
		if derr := w.client.DeleteGroup(ctx, w.communityID, groupID, "event creation failed"); derr != nil {
			logger.Warningf("Failed to roll back group %d: %v", groupID, derr)
		}
		return nil
	}

	local := w.due.In(w.loc)
	w.say(ctx, "✅ <b>%s</b> is scheduled for %s %s. Members can join with /event join %s.",
		w.name, local.Format("Monday, Jan 2 2006 15:04"), local.Format("MST"), w.name)
	return nil
}

// abort tells the user why the wizard ended, for the reasons that end it
// without a confirmation.
func (w *Wizard) abort(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, errCanceled):
		w.say(ctx, "Canceled — nothing was created.")
		return nil
	case errors.Is(err, errTimedOut):
		w.say(ctx, "No reply — I stopped the event setup. Run /event create to start over.")
		return nil
	default:
		return err
	}
}
