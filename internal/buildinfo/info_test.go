package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	old := [3]string{Version, Commit, Date}
	t.Cleanup(func() { Version, Commit, Date = old[0], old[1], old[2] })

	Version, Commit, Date = "v0.3.0", "abc123", "2025-03-01"
	assert.Equal(t, "v0.3.0 (commit: abc123, built: 2025-03-01)", String())
}
