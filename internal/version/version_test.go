package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	old := GitCommit
	t.Cleanup(func() { GitCommit = old })

	GitCommit = "abc123"
	assert.Equal(t, "v"+Version+" (abc123, built "+BuildTime+")", String())
}
