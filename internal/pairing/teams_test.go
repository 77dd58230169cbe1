package pairing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTeamMappingJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "teams.json")
	require.NoError(t, os.WriteFile(jsonPath,
		[]byte(`{"nba": {"kalshi": {"LAL": "Lakers"}, "polymarket": {"lal": "lakers"}}}`), 0o600))
	yamlPath := filepath.Join(dir, "teams.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
nba:
  kalshi:
    LAL: Lakers
  polymarket:
    lal: lakers
`), 0o600))

	for _, path := range []string{jsonPath, yamlPath} {
		m, err := LoadTeamMapping(path)
		require.NoError(t, err, path)
		assert.Equal(t, 2, m.Len())

		c, ok := m.Canonical("NBA", domain.VenueKalshi, "lal")
		require.True(t, ok)
		assert.Equal(t, "lakers", c)
		c, ok = m.Canonical("nba", domain.VenuePolymarket, "LAL")
		require.True(t, ok)
		assert.Equal(t, "lakers", c)
	}
}

func TestLoadTeamMappingMissingFileIsEmpty(t *testing.T) {
	m, err := LoadTeamMapping(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Zero(t, m.Len())
}

func TestLoadTeamMappingRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teams.yml")
	require.NoError(t, os.WriteFile(path, []byte("nba: [unclosed"), 0o600))
	_, err := LoadTeamMapping(path)
	assert.Error(t, err)
}
