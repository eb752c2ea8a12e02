package models

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Group is a membership group created for one event. Telegram has no native
// roles, so a group is a named participant set; "tagging" the group means
// mentioning every member.
type Group struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	GroupID     int64 `gorm:"uniqueIndex"`
	CommunityID int64 `gorm:"index"`
	Name        string
}

// GroupMember records one user's membership in a group.
type GroupMember struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time

	GroupID  int64 `gorm:"index:idx_group_member,unique"`
	UserID   int64 `gorm:"index:idx_group_member,unique"`
	Nickname string
}

// MentionTag renders the member as an HTML mention link.
func (m *GroupMember) MentionTag() string {
	name := m.Nickname
	if name == "" {
		name = fmt.Sprintf("user %d", m.UserID)
	}
	return fmt.Sprintf("<a href=\"tg://user?id=%d\">%s</a>", m.UserID, name)
}

// GroupManager is the in-memory cache of groups and their members, in front
// of the optional database repository.
type GroupManager struct {
	mu      sync.RWMutex
	groups  map[int64]*Group
	members map[int64]map[int64]*GroupMember // groupID -> userID -> member
	nextID  int64
}

func NewGroupManager() *GroupManager {
	return &GroupManager{
		groups:  make(map[int64]*Group),
		members: make(map[int64]map[int64]*GroupMember),
		nextID:  1,
	}
}

// AddGroup registers a group, adjusting the allocator past loaded IDs.
func (g *GroupManager) AddGroup(group *Group) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.groups[group.GroupID] = group
	if group.GroupID >= g.nextID {
		g.nextID = group.GroupID + 1
	}
	if g.members[group.GroupID] == nil {
		g.members[group.GroupID] = make(map[int64]*GroupMember)
	}
}

// NewGroup allocates an ID and registers a fresh group.
func (g *GroupManager) NewGroup(communityID int64, name string) *Group {
	g.mu.Lock()
	defer g.mu.Unlock()
	group := &Group{
		GroupID:     g.nextID,
		CommunityID: communityID,
		Name:        name,
		CreatedAt:   time.Now(),
	}
	g.nextID++
	g.groups[group.GroupID] = group
	g.members[group.GroupID] = make(map[int64]*GroupMember)
	return group
}

// GetGroup returns the group or nil when it is unknown.
func (g *GroupManager) GetGroup(groupID int64) *Group {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.groups[groupID]
}

// RemoveGroup drops the group and its member set.
func (g *GroupManager) RemoveGroup(groupID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.groups, groupID)
	delete(g.members, groupID)
}

// AddMember inserts a member; returns false if the user was already in.
func (g *GroupManager) AddMember(member *GroupMember) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := g.members[member.GroupID]
	if set == nil {
		set = make(map[int64]*GroupMember)
		g.members[member.GroupID] = set
	}
	if _, ok := set[member.UserID]; ok {
		return false
	}
	set[member.UserID] = member
	return true
}

// RemoveMember drops a member; returns false if the user was not in.
func (g *GroupManager) RemoveMember(groupID, userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := g.members[groupID]
	if set == nil {
		return false
	}
	if _, ok := set[userID]; !ok {
		return false
	}
	delete(set, userID)
	return true
}

// HasMember reports current membership.
func (g *GroupManager) HasMember(groupID, userID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set := g.members[groupID]
	if set == nil {
		return false
	}
	_, ok := set[userID]
	return ok
}

// Members returns the member list ordered by user ID for stable rendering.
func (g *GroupManager) Members(groupID int64) []*GroupMember {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set := g.members[groupID]
	out := make([]*GroupMember, 0, len(set))
	for _, m := range set {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
