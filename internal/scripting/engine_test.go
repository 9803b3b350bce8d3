package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPolicy = `
function validate_create(req)
    if req.stats.str + req.stats.dex > 30 then
        return { ok = false, reason = "too strong" }
    end
    if req.name == "admin" then
        return false
    end
    return { ok = true }
end

function starting_zone(class)
    if class == 2 then
        return { zone_id = 1, x = 64, y = 64 }
    end
    return nil
end
`

func newTestEngine(t *testing.T, script string) *Engine {
	t.Helper()
	dir := t.TempDir()
	policyDir := filepath.Join(dir, "policy")
	require.NoError(t, os.MkdirAll(policyDir, 0o755))
	if script != "" {
		require.NoError(t, os.WriteFile(filepath.Join(policyDir, "creation.lua"), []byte(script), 0o644))
	}
	e, err := NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestValidateCreationVerdicts(t *testing.T) {
	e := newTestEngine(t, testPolicy)

	v := e.ValidateCreation(CreationRequest{Name: "ok", Str: 10, Dex: 10})
	assert.True(t, v.OK)

	v = e.ValidateCreation(CreationRequest{Name: "brute", Str: 18, Dex: 18})
	assert.False(t, v.OK)
	assert.Equal(t, "too strong", v.Reason)

	// Bare boolean return is accepted too.
	v = e.ValidateCreation(CreationRequest{Name: "admin"})
	assert.False(t, v.OK)
}

func TestValidateCreationDefaultsToPass(t *testing.T) {
	e := newTestEngine(t, "")
	v := e.ValidateCreation(CreationRequest{Name: "anyone"})
	assert.True(t, v.OK)
}

func TestStartingZoneOverride(t *testing.T) {
	e := newTestEngine(t, testPolicy)

	zone, x, y, ok := e.StartingZone(2)
	require.True(t, ok)
	assert.Equal(t, uint16(1), zone)
	assert.Equal(t, int16(64), x)
	assert.Equal(t, int16(64), y)

	_, _, _, ok = e.StartingZone(0)
	assert.False(t, ok, "nil return means use the default landing point")
}

func TestStartingZoneWithoutScript(t *testing.T) {
	e := newTestEngine(t, "")
	_, _, _, ok := e.StartingZone(2)
	assert.False(t, ok)
}
