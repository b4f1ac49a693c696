package roster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	r := Default()
	require.NoError(t, r.Validate())

	assert.True(t, r.IsUsable("CISO"))
	assert.True(t, r.IsUsable("CAL"), "targets are usable")
	assert.False(t, r.IsUsable("OVEC"))
	assert.False(t, r.IsUsable("SEC"))
	assert.False(t, r.IsUsable("NOPE"))

	assert.True(t, r.IsTarget("WESTERN"))
	assert.False(t, r.IsTarget("CISO"))

	bas := r.BAs()
	assert.Contains(t, bas, "OVEC", "unusable members are still balancing authorities")
	assert.Contains(t, bas, "ERCO")
	assert.NotContains(t, bas, "CAL")
	assert.IsIncreasing(t, bas)

	// every usable BA is a member of some target
	for _, u := range r.Usable {
		assert.Contains(t, bas, u)
	}

	entities := r.Entities()
	assert.NotContains(t, entities, "OVEC")
	assert.Equal(t, "WESTERN", entities[len(entities)-1])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		roster Roster
		errStr string
	}{
		{
			name:   "unnamed",
			roster: Roster{Targets: []Target{{Members: []string{"A"}}}},
			errStr: "has no name",
		},
		{
			name:   "no members",
			roster: Roster{Targets: []Target{{Name: "R"}}},
			errStr: "has no members",
		},
		{
			name:   "self",
			roster: Roster{Targets: []Target{{Name: "R", Members: []string{"A", "R"}}}},
			errStr: "lists itself",
		},
		{
			name: "forward reference",
			roster: Roster{Targets: []Target{
				{Name: "IC", Members: []string{"R"}},
				{Name: "R", Members: []string{"A"}},
			}},
			errStr: "built later",
		},
		{
			name: "duplicate",
			roster: Roster{Targets: []Target{
				{Name: "R", Members: []string{"A"}},
				{Name: "R", Members: []string{"B"}},
			}},
			errStr: "listed twice",
		},
		{
			name:   "empty usable",
			roster: Roster{Targets: []Target{{Name: "R", Members: []string{"A"}}}, Usable: []string{""}},
			errStr: "empty entity",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, tt.roster.Validate(), tt.errStr)
		})
	}

	t.Run("targets built from targets", func(t *testing.T) {
		r := Roster{Targets: []Target{
			{Name: "R1", Members: []string{"A", "B"}},
			{Name: "R2", Members: []string{"C"}},
			{Name: "IC", Members: []string{"R1", "R2"}},
		}}
		require.NoError(t, r.Validate())
		assert.Equal(t, []string{"A", "B", "C"}, r.BAs())
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "roster.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"targets": [{"name": "CAL", "members": ["CISO", "BANC"]}],
		"usable": ["CISO"]
	}`), 0o644))

	r, err := Load(path)
	require.NoError(t, err)
	require.Len(t, r.Targets, 1)
	assert.Equal(t, []string{"CISO", "BANC"}, r.Targets[0].Members)
	assert.True(t, r.IsUsable("CISO"))
	assert.False(t, r.IsUsable("BANC"))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"targets": [{"name": "CAL"}]}`), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "has no members")

	_, err = Load(filepath.Join(dir, "nope.json"))
	assert.Error(t, err)
}
