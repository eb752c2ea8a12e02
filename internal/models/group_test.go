package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupManagerAllocatesIDsPastLoadedOnes(t *testing.T) {
	m := NewGroupManager()
	m.AddGroup(&Group{GroupID: 10, CommunityID: 1, Name: "loaded"})

	fresh := m.NewGroup(1, "fresh")
	assert.Equal(t, int64(11), fresh.GroupID)
	assert.NotNil(t, m.GetGroup(10))
	assert.NotNil(t, m.GetGroup(11))
}

func TestGroupManagerMembership(t *testing.T) {
	m := NewGroupManager()
	group := m.NewGroup(1, "party")

	assert.True(t, m.AddMember(&GroupMember{GroupID: group.GroupID, UserID: 42, Nickname: "Alice"}))
	assert.False(t, m.AddMember(&GroupMember{GroupID: group.GroupID, UserID: 42, Nickname: "Alice"}))
	assert.True(t, m.HasMember(group.GroupID, 42))

	assert.True(t, m.RemoveMember(group.GroupID, 42))
	assert.False(t, m.RemoveMember(group.GroupID, 42))
	assert.False(t, m.HasMember(group.GroupID, 42))
}

func TestGroupManagerMembersOrderedByUserID(t *testing.T) {
	m := NewGroupManager()
	group := m.NewGroup(1, "party")
	for _, id := range []int64{30, 10, 20} {
		require.True(t, m.AddMember(&GroupMember{GroupID: group.GroupID, UserID: id}))
	}

	members := m.Members(group.GroupID)
	require.Len(t, members, 3)
	assert.Equal(t, int64(10), members[0].UserID)
	assert.Equal(t, int64(20), members[1].UserID)
	assert.Equal(t, int64(30), members[2].UserID)
}

func TestGroupManagerRemoveGroup(t *testing.T) {
	m := NewGroupManager()
	group := m.NewGroup(1, "party")
	m.AddMember(&GroupMember{GroupID: group.GroupID, UserID: 42})

	m.RemoveGroup(group.GroupID)
	assert.Nil(t, m.GetGroup(group.GroupID))
	assert.False(t, m.HasMember(group.GroupID, 42))
}

func TestMentionTagFallsBackToUserID(t *testing.T) {
	named := &GroupMember{UserID: 42, Nickname: "Alice"}
	assert.Equal(t, `<a href="tg://user?id=42">Alice</a>`, named.MentionTag())

	anon := &GroupMember{UserID: 42}
	assert.Equal(t, `<a href="tg://user?id=42">user 42</a>`, anon.MentionTag())
}
