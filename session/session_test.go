package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateIDIsUniqueAndPrefixed(t *testing.T) {
	a := GenerateID()
	b := GenerateID()

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a.String(), "sio:"))
}

func TestIDRoomIsItsOwnID(t *testing.T) {
	id := ID("sio:abc")
	assert.Equal(t, id.String(), id.Room())
}
