package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MarkerFileName is the name of the pending-session marker written into a
// profile slot. The marker carries cookies and origin storage that the
// browser layer injects into the live context on the next launch, after
// which the marker is removed.
const MarkerFileName = "imported-session.json"

// State is the session payload stored in a slot marker. The field layout
// mirrors the storage-state format used by the browser driver so the
// payload can be handed over without translation.
type State struct {
	Cookies []Cookie      `json:"cookies"`
	Origins []OriginState `json:"origins"`
}

// Cookie is a single browser cookie in storage-state form.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// OriginState holds per-origin local storage entries.
type OriginState struct {
	Origin       string `json:"origin"`
	LocalStorage []KV   `json:"localStorage"`
}

// KV is a single local storage key/value pair.
type KV struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MarkerPath returns the marker location inside a profile slot.
func MarkerPath(slotPath string) string {
	return filepath.Join(slotPath, MarkerFileName)
}

// WriteMarker persists state as the slot's pending-session marker. The
// write goes through a temp file and rename so a crash mid-write never
// leaves a partial marker behind.
func WriteMarker(slotPath string, state *State) error {
	if err := os.MkdirAll(slotPath, 0750); err != nil {
		return fmt.Errorf("failed to create slot directory: %w", err)
	}

	path := MarkerPath(slotPath)
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp marker: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(state); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode marker: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp marker: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp marker: %w", err)
	}

	return nil
}

// ConsumeMarker reads and removes the slot's pending-session marker.
// A missing marker returns (nil, nil). A marker that cannot be parsed is
// removed so it is not retried on every launch, and the parse error is
// returned.
func ConsumeMarker(slotPath string) (*State, error) {
	path := MarkerPath(slotPath)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read marker: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to parse marker: %w", err)
	}

	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("failed to remove marker: %w", err)
	}

	return &state, nil
}

// DepositState merges state into the slot's pending-session marker,
// preserving anything an earlier deposit left that the incoming state
// does not override. This is the write side for out-of-band cookie
// deliverers — the companion extension's native-messaging host, or the
// CLI's sync --state; the browser layer consumes the result at the
// slot's next open. An existing marker that cannot be parsed is
// replaced outright.
func DepositState(slotPath string, state *State) error {
	existing, err := peekMarker(slotPath)
	if err != nil {
		existing = nil
	}
	return WriteMarker(slotPath, MergeStates(existing, state))
}

// peekMarker reads the marker without removing it. Missing markers
// return (nil, nil).
func peekMarker(slotPath string) (*State, error) {
	data, err := os.ReadFile(MarkerPath(slotPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read marker: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse marker: %w", err)
	}
	return &state, nil
}

// Dedupe collapses cookies that share (domain, name, path), keeping the
// last occurrence. Merging an existing marker with freshly imported
// cookies therefore lets the newer value win without growing the payload
// on repeated imports.
func Dedupe(cookies []Cookie) []Cookie {
	type key struct {
		domain, name, path string
	}

	index := make(map[key]int, len(cookies))
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		k := key{c.Domain, c.Name, c.Path}
		if i, seen := index[k]; seen {
			out[i] = c
			continue
		}
		index[k] = len(out)
		out = append(out, c)
	}
	return out
}

// MergeStates combines an existing marker state with a newer one. Cookies
// are deduped with the newer side winning; origins are replaced wholesale
// when the newer state carries any.
func MergeStates(existing, incoming *State) *State {
	if existing == nil {
		return incoming
	}
	if incoming == nil {
		return existing
	}

	merged := &State{
		Cookies: Dedupe(append(existing.Cookies, incoming.Cookies...)),
		Origins: existing.Origins,
	}
	if len(incoming.Origins) > 0 {
		merged.Origins = incoming.Origins
	}
	return merged
}
