// Package fsutil guards filesystem access for handlers that serve
// user-addressed paths.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot marks paths that resolve outside the confinement root,
// whether by traversal segments, absolute targets, or symlinks.
var ErrEscapesRoot = errors.New("path escapes root")

// ConfineRelPath joins rel onto root and verifies the result stays
// physically inside root after resolving symlinks. It returns the
// resolved path. A target that does not exist yet is confined through
// its parent directory, so callers can tell missing files apart from
// escapes.
func ConfineRelPath(root, rel string) (string, error) {
	if strings.Contains(rel, "\\") {
		return "", fmt.Errorf("%w: backslash in %q", ErrEscapesRoot, rel)
	}

	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: absolute target %q", ErrEscapesRoot, rel)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: traversal in %q", ErrEscapesRoot, rel)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}

	resolved, err := resolveTarget(filepath.Join(realRoot, clean))
	if err != nil {
		return "", err
	}

	relToRoot, err := filepath.Rel(realRoot, resolved)
	if err != nil || relToRoot == ".." || strings.HasPrefix(relToRoot, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q resolves to %s", ErrEscapesRoot, rel, resolved)
	}
	return resolved, nil
}

// resolveTarget follows symlinks on the target, falling back to the
// parent directory when the leaf does not exist yet.
func resolveTarget(full string) (string, error) {
	resolved, err := filepath.EvalSymlinks(full)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("resolve target: %w", err)
	}

	parent := filepath.Dir(full)
	realParent, perr := filepath.EvalSymlinks(parent)
	if perr != nil {
		if os.IsNotExist(perr) {
			// Nothing on the path exists; the lexical path is all
			// there is to check.
			return full, nil
		}
		return "", fmt.Errorf("resolve parent: %w", perr)
	}
	return filepath.Join(realParent, filepath.Base(full)), nil
}
