package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() *State {
	return &State{
		Cookies: []Cookie{
			{Name: "SID", Value: "abc", Domain: ".google.com", Path: "/", Expires: 1893456000, HTTPOnly: true, Secure: true, SameSite: "Lax"},
			{Name: "session", Value: "xyz", Domain: "github.com", Path: "/", Secure: true},
		},
		Origins: []OriginState{
			{
				Origin:       "https://www.notion.so",
				LocalStorage: []KV{{Name: "theme", Value: "dark"}},
			},
		},
	}
}

func TestWriteAndConsumeMarker(t *testing.T) {
	slot := t.TempDir()
	state := sampleState()

	require.NoError(t, WriteMarker(slot, state))

	raw, err := os.ReadFile(MarkerPath(slot))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"httpOnly"`)
	assert.Contains(t, string(raw), `"sameSite"`)

	got, err := ConsumeMarker(slot)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, state.Cookies, got.Cookies)
	assert.Equal(t, state.Origins, got.Origins)

	_, err = os.Stat(MarkerPath(slot))
	assert.True(t, os.IsNotExist(err), "marker should be removed after consumption")
}

func TestConsumeMarkerMissing(t *testing.T) {
	got, err := ConsumeMarker(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConsumeMarkerCorrupt(t *testing.T) {
	slot := t.TempDir()
	require.NoError(t, os.WriteFile(MarkerPath(slot), []byte("{not json"), 0644))

	got, err := ConsumeMarker(slot)
	require.Error(t, err)
	assert.Nil(t, got)

	_, statErr := os.Stat(MarkerPath(slot))
	assert.True(t, os.IsNotExist(statErr), "corrupt marker should be removed so it is not retried")
}

func TestWriteMarkerLeavesNoTempFile(t *testing.T) {
	slot := t.TempDir()
	require.NoError(t, WriteMarker(slot, sampleState()))

	entries, err := os.ReadDir(slot)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp")
	}
}

func TestWriteMarkerCreatesSlotDir(t *testing.T) {
	slot := filepath.Join(t.TempDir(), "pool-3")
	require.NoError(t, WriteMarker(slot, sampleState()))
	assert.FileExists(t, MarkerPath(slot))
}

func TestDepositStateMergesExistingMarker(t *testing.T) {
	slot := t.TempDir()

	require.NoError(t, DepositState(slot, &State{
		Cookies: []Cookie{
			{Name: "SID", Domain: ".google.com", Path: "/", Value: "old"},
			{Name: "keep", Domain: "example.com", Path: "/", Value: "kept"},
		},
	}))
	require.NoError(t, DepositState(slot, &State{
		Cookies: []Cookie{{Name: "SID", Domain: ".google.com", Path: "/", Value: "new"}},
	}))

	got, err := ConsumeMarker(slot)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Cookies, 2)
	assert.Equal(t, "new", got.Cookies[0].Value)
	assert.Equal(t, "kept", got.Cookies[1].Value)
}

func TestDepositStateReplacesCorruptMarker(t *testing.T) {
	slot := t.TempDir()
	require.NoError(t, os.WriteFile(MarkerPath(slot), []byte("{not json"), 0644))

	require.NoError(t, DepositState(slot, sampleState()))

	got, err := ConsumeMarker(slot)
	require.NoError(t, err)
	assert.Equal(t, sampleState().Cookies, got.Cookies)
}

func TestDedupe(t *testing.T) {
	cookies := []Cookie{
		{Name: "SID", Domain: ".google.com", Path: "/", Value: "old"},
		{Name: "session", Domain: "github.com", Path: "/", Value: "gh"},
		{Name: "SID", Domain: ".google.com", Path: "/", Value: "new"},
		{Name: "SID", Domain: ".google.com", Path: "/mail", Value: "scoped"},
	}

	got := Dedupe(cookies)

	require.Len(t, got, 3)
	assert.Equal(t, "new", got[0].Value, "later duplicate should win in place")
	assert.Equal(t, "gh", got[1].Value)
	assert.Equal(t, "scoped", got[2].Value, "same name on a different path is a distinct cookie")
}

func TestMergeStates(t *testing.T) {
	existing := &State{
		Cookies: []Cookie{
			{Name: "SID", Domain: ".google.com", Path: "/", Value: "old"},
			{Name: "keep", Domain: "example.com", Path: "/", Value: "kept"},
		},
		Origins: []OriginState{{Origin: "https://old.example"}},
	}
	incoming := &State{
		Cookies: []Cookie{
			{Name: "SID", Domain: ".google.com", Path: "/", Value: "new"},
		},
		Origins: []OriginState{{Origin: "https://new.example"}},
	}

	merged := MergeStates(existing, incoming)

	require.Len(t, merged.Cookies, 2)
	assert.Equal(t, "new", merged.Cookies[0].Value)
	assert.Equal(t, "kept", merged.Cookies[1].Value)
	require.Len(t, merged.Origins, 1)
	assert.Equal(t, "https://new.example", merged.Origins[0].Origin)
}

func TestMergeStatesIdempotent(t *testing.T) {
	existing := sampleState()
	incoming := &State{
		Cookies: []Cookie{{Name: "SID", Domain: ".google.com", Path: "/", Value: "newer"}},
	}

	once := MergeStates(existing, incoming)
	twice := MergeStates(once, incoming)

	assert.Equal(t, once.Cookies, twice.Cookies, "re-merging the same import should not grow the cookie set")
}

func TestMergeStatesNilSides(t *testing.T) {
	state := sampleState()
	assert.Equal(t, state, MergeStates(nil, state))
	assert.Equal(t, state, MergeStates(state, nil))
}
