package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidates(t *testing.T) {
	c, err := NewCandidates([]string{"Alice", "Bob", "Charlie"})
	require.NoError(t, err)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, uint32(3), c.MaxCode())
	name, ok := c.Name(2)
	assert.True(t, ok)
	assert.Equal(t, "Bob", name)
	_, ok = c.Name(0)
	assert.False(t, ok)
	_, ok = c.Name(4)
	assert.False(t, ok)

	list := c.List()
	require.Len(t, list, 3)
	assert.Equal(t, uint32(1), list[0].Code)
	list[0].Name = "changed"
	name, _ = c.Name(1)
	assert.Equal(t, "Alice", name)
}

func TestCandidatesInvalid(t *testing.T) {
	_, err := NewCandidates(nil)
	assert.Error(t, err)
	_, err = NewCandidates([]string{"Alice", " "})
	assert.Error(t, err)
	_, err = NewCandidates([]string{"Alice", "Alice"})
	assert.Error(t, err)
}

func TestFileVoterRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets", "voters.json")
	reg, err := NewFileVoterRegistry(RegistryConfig{VotersFilePath: path})
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Len())
	assert.FileExists(t, path)

	content := `{"voters":[{"voter_id":"v1","is_active":true},{"voter_id":"v2","is_active":false}]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, reg.LoadVotersFromFile())

	assert.NoError(t, reg.CheckEligible("v1"))
	assert.ErrorIs(t, reg.CheckEligible("v2"), ErrInactiveVoter)
	assert.ErrorIs(t, reg.CheckEligible("v3"), ErrUnknownVoter)

	require.NoError(t, os.WriteFile(path, []byte(`{"voters":[{"voter_id":"a"},{"voter_id":"a"}]}`), 0644))
	assert.Error(t, reg.LoadVotersFromFile())
}

func TestStaticVoterRegistry(t *testing.T) {
	reg := NewStaticVoterRegistry("a", "b")
	assert.NoError(t, reg.CheckEligible("a"))
	assert.ErrorIs(t, reg.CheckEligible("c"), ErrUnknownVoter)
}
