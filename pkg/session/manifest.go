package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileSpec names one file inside a profile directory that constitutes session
// state worth propagating. Missing required files abort propagation to a
// target; missing optional files are skipped silently.
type FileSpec struct {
	RelativePath string `yaml:"path"`
	Required     bool   `yaml:"required"`
}

// manifestFile is the on-disk shape of an overriding sync.yaml
type manifestFile struct {
	Files []FileSpec `yaml:"files"`
}

// DefaultManifest returns the session artifacts propagated between pool
// slots. Cookies are the minimum viable artifact; everything else keeps idle
// profiles looking lived-in (history, autofill, bookmarks, preferences).
// Both the current Chrome cookie location and the pre-96 one are listed so
// profiles written by either layout propagate.
func DefaultManifest() []FileSpec {
	return []FileSpec{
		{RelativePath: "Default/Network/Cookies", Required: true},
		{RelativePath: "Default/Network/Cookies-journal", Required: false},
		{RelativePath: "Default/Cookies", Required: false},
		{RelativePath: "Default/Cookies-journal", Required: false},
		{RelativePath: "Default/History", Required: false},
		{RelativePath: "Default/Web Data", Required: false},
		{RelativePath: "Default/Bookmarks", Required: false},
		{RelativePath: "Default/Preferences", Required: false},
	}
}

// LoadManifest reads a sync-rules file, falling back to DefaultManifest when
// the file does not exist. Paths must be relative and stay inside the profile
// directory they are joined onto.
func LoadManifest(path string) ([]FileSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultManifest(), nil
		}
		return nil, fmt.Errorf("failed to read sync rules: %w", err)
	}

	var parsed manifestFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse sync rules: %w", err)
	}

	if len(parsed.Files) == 0 {
		return DefaultManifest(), nil
	}

	for _, spec := range parsed.Files {
		if err := validateRelativePath(spec.RelativePath); err != nil {
			return nil, fmt.Errorf("invalid sync rule %q: %w", spec.RelativePath, err)
		}
	}

	return parsed.Files, nil
}

// validateRelativePath rejects manifest entries that could escape a profile
// directory when joined onto it.
func validateRelativePath(relativePath string) error {
	if relativePath == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if filepath.IsAbs(relativePath) || strings.HasPrefix(relativePath, "/") {
		return fmt.Errorf("path must be relative")
	}
	clean := filepath.Clean(filepath.FromSlash(relativePath))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes the profile directory")
	}
	return nil
}
