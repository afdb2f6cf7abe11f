package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrnoOKString(t *testing.T) {
	assert.Equal(t, "ok", EOK.Error())
}

func TestErrnoKnownValuesHaveText(t *testing.T) {
	for errno := range errnoText {
		assert.NotEqual(t, "unknown error", errno.Error(), "errno %d is missing readable text", errno)
	}
}

func TestErrnoUnknownValueFallsBack(t *testing.T) {
	assert.Equal(t, "unknown error", Errno(-999).Error())
}

func TestErrnoValuesAreDistinct(t *testing.T) {
	seen := map[Errno]bool{EOK: true}
	for errno := range errnoText {
		assert.False(t, seen[errno], "errno %d reused", errno)
		seen[errno] = true
	}
}
