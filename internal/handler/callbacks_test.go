package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCallbackData(t *testing.T) {
	action, communityID, groupID, ok := parseCallbackData("evjoin:100:7")
	assert.True(t, ok)
	assert.Equal(t, "evjoin", action)
	assert.Equal(t, int64(100), communityID)
	assert.Equal(t, int64(7), groupID)

	action, communityID, groupID, ok = parseCallbackData("evleave:-100123:42")
	assert.True(t, ok)
	assert.Equal(t, "evleave", action)
	assert.Equal(t, int64(-100123), communityID)
	assert.Equal(t, int64(42), groupID)

	for _, data := range []string{"", "evjoin", "evjoin:1", "evjoin:1:2:3", "ban:1:2", "evjoin:x:2", "evjoin:1:y"} {
		_, _, _, ok := parseCallbackData(data)
		assert.False(t, ok, "data %q", data)
	}
}
