package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydraspecter/hydraspecter/pkg/session"
)

func TestDepositStateFile(t *testing.T) {
	slot := t.TempDir()
	statePath := filepath.Join(t.TempDir(), "state.json")
	payload := `{
  "cookies": [{"name": "sid", "value": "v", "domain": ".example.com", "path": "/"}],
  "origins": [{"origin": "https://example.com", "localStorage": [{"name": "k", "value": "v"}]}]
}`
	require.NoError(t, os.WriteFile(statePath, []byte(payload), 0600))

	require.NoError(t, depositStateFile(slot, statePath))

	state, err := session.ConsumeMarker(slot)
	require.NoError(t, err)
	require.NotNil(t, state)
	require.Len(t, state.Cookies, 1)
	assert.Equal(t, "sid", state.Cookies[0].Name)
	require.Len(t, state.Origins, 1)
	assert.Equal(t, "https://example.com", state.Origins[0].Origin)
}

func TestDepositStateFileMergesIntoExistingMarker(t *testing.T) {
	slot := t.TempDir()
	require.NoError(t, session.DepositState(slot, &session.State{
		Cookies: []session.Cookie{{Name: "sid", Value: "old", Domain: ".example.com", Path: "/"}},
	}))

	statePath := filepath.Join(t.TempDir(), "state.json")
	payload := `{"cookies": [{"name": "sid", "value": "new", "domain": ".example.com", "path": "/"}], "origins": []}`
	require.NoError(t, os.WriteFile(statePath, []byte(payload), 0600))

	require.NoError(t, depositStateFile(slot, statePath))

	state, err := session.ConsumeMarker(slot)
	require.NoError(t, err)
	require.Len(t, state.Cookies, 1)
	assert.Equal(t, "new", state.Cookies[0].Value)
}

func TestDepositStateFileErrors(t *testing.T) {
	slot := t.TempDir()

	assert.Error(t, depositStateFile(slot, filepath.Join(slot, "missing.json")))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0600))
	assert.Error(t, depositStateFile(slot, bad))

	assert.NoFileExists(t, session.MarkerPath(slot), "a bad payload must not produce a marker")
}
