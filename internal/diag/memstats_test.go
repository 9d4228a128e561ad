package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadRSSBytesReturnsNonZero(t *testing.T) {
	rss, err := ReadRSSBytes()
	assert.NoError(t, err)
	assert.Greater(t, rss, uint64(0))
}
