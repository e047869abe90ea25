// Package dataroot confines file system operations to the HydraSpecter data
// root. Slot directories, lock records and sync targets are all derived by
// joining configured or manifest-supplied names onto the root; the guard
// ensures none of those joins escape it, including via .. components or
// symlinks planted inside a profile directory.
package dataroot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Guard validates that derived paths stay inside the data root. Sync manifests
// are user-editable and profile directories contain browser-written content,
// so every path assembled from either is checked before use.
type Guard struct {
	rootDir string // Absolute path to the data root
}

// NewGuard creates a guard for the given data root. The path is made
// absolute, cleaned, and has its symlinks evaluated so later comparisons are
// consistent.
func NewGuard(rootDir string) (*Guard, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("data root cannot be empty")
	}

	absPath, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data root: %w", err)
	}

	evalPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate data root symlinks: %w", err)
	}

	return &Guard{rootDir: evalPath}, nil
}

// ValidatePath checks that the given path resolves inside the data root.
// Relative paths are resolved against the root.
func (g *Guard) ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	resolved, err := g.ResolvePath(path)
	if err != nil {
		return err
	}

	if !g.IsWithinRoot(resolved) {
		return fmt.Errorf("path '%s' is outside the data root", path)
	}

	return nil
}

// ResolvePath converts a relative or absolute path to an absolute path in the
// data root context, cleaning .. and . components and resolving symlinks.
// Supports tilde expansion for paths starting with ~/.
func (g *Guard) ResolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	expandedPath := path
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand ~: %w", err)
		}
		expandedPath = filepath.Join(homeDir, path[2:])
	} else if path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand ~: %w", err)
		}
		expandedPath = homeDir
	}

	cleanPath := filepath.Clean(expandedPath)

	var absPath string
	if filepath.IsAbs(cleanPath) {
		absPath = cleanPath
	} else {
		absPath = filepath.Join(g.rootDir, cleanPath)
	}
	absPath = filepath.Clean(absPath)

	// Sync targets usually don't exist yet, so resolve through the nearest
	// existing ancestor instead of failing on the leaf
	return g.resolveSymlinks(absPath), nil
}

// IsWithinRoot checks if an absolute path is the data root itself or a child
// of it. This is the core containment check.
func (g *Guard) IsWithinRoot(absPath string) bool {
	evalPath := g.resolveSymlinks(absPath)

	return evalPath == g.rootDir ||
		strings.HasPrefix(evalPath+string(filepath.Separator), g.rootDir+string(filepath.Separator))
}

// resolveSymlinks resolves symlinks in a path, handling non-existent paths by
// resolving parent directories until an existing one is found.
func (g *Guard) resolveSymlinks(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	var components []string
	currentPath := path

	for {
		if resolved, err := filepath.EvalSymlinks(currentPath); err == nil {
			result := resolved
			for i := len(components) - 1; i >= 0; i-- {
				result = filepath.Join(result, components[i])
			}
			return result
		}

		dir := filepath.Dir(currentPath)
		if dir == currentPath || dir == "." || dir == "/" {
			return path
		}

		components = append(components, filepath.Base(currentPath))
		currentPath = dir
	}
}

// RootDir returns the absolute path of the data root.
func (g *Guard) RootDir() string {
	return g.rootDir
}

// MakeRelative converts an absolute path to a path relative to the data root.
// Returns an error if the path is not within the root.
func (g *Guard) MakeRelative(absPath string) (string, error) {
	if !g.IsWithinRoot(absPath) {
		return "", fmt.Errorf("path '%s' is not within the data root", absPath)
	}

	relPath, err := filepath.Rel(g.rootDir, absPath)
	if err != nil {
		return "", fmt.Errorf("failed to make path relative: %w", err)
	}

	return relPath, nil
}
