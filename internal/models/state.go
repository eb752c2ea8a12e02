package models

// State is the single persisted document the bot rehydrates from at
// startup. The in-memory copy is authoritative; every mutation is followed
// by a full-document save through the storage layer.
//
// JSON field names are part of the on-disk format, keep them stable.
type State struct {
	GuildDefaultTimezones map[int64]string     `json:"guildDefaultTimeZones"`
	Events                map[int64][]*Event   `json:"events"`
	UserTimezones         map[int64]string     `json:"userTimeZones"`
	FinishedGroups        []CleanupRecord      `json:"finishedRoles"`
	DigestMessages        map[int64]MessageRef `json:"eventInfoMessage"`
}

// NewState returns an empty state with all maps allocated.
func NewState() *State {
	return &State{
		GuildDefaultTimezones: make(map[int64]string),
		Events:                make(map[int64][]*Event),
		UserTimezones:         make(map[int64]string),
		FinishedGroups:        []CleanupRecord{},
		DigestMessages:        make(map[int64]MessageRef),
	}
}

// Normalize allocates any maps that are nil after decoding an older or
// partial document.
func (s *State) Normalize() {
	if s.GuildDefaultTimezones == nil {
		s.GuildDefaultTimezones = make(map[int64]string)
	}
	if s.Events == nil {
		s.Events = make(map[int64][]*Event)
	}
	if s.UserTimezones == nil {
		s.UserTimezones = make(map[int64]string)
	}
	if s.FinishedGroups == nil {
		s.FinishedGroups = []CleanupRecord{}
	}
	if s.DigestMessages == nil {
		s.DigestMessages = make(map[int64]MessageRef)
	}
}

// Clone returns a deep copy, so a save can serialize a stable snapshot while
// the live state keeps changing.
func (s *State) Clone() *State {
	c := NewState()
	for k, v := range s.GuildDefaultTimezones {
		c.GuildDefaultTimezones[k] = v
	}
	for k, v := range s.UserTimezones {
		c.UserTimezones[k] = v
	}
	for k, v := range s.DigestMessages {
		c.DigestMessages[k] = v
	}
	for community, events := range s.Events {
		list := make([]*Event, len(events))
		for i, ev := range events {
			copied := *ev
			list[i] = &copied
		}
		c.Events[community] = list
	}
	c.FinishedGroups = append(c.FinishedGroups, s.FinishedGroups...)
	return c
}
