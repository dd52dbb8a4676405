// Package deploy compares a freshly generated config tree against the
// live one and applies the difference transactionally.
package deploy

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// autoPrefix marks files this engine owns. Only files with this prefix
// are ever deleted from the live tree; hand-maintained files and stale
// host_*.cfg files are left alone.
const autoPrefix = "auto_"

// Diff classifies the filenames of two flat config directories.
type Diff struct {
	// Changed files exist in both trees with different content.
	Changed []string
	// Added files exist only in the generated tree.
	Added []string
	// Removed files exist only in the live tree and carry the
	// engine-owned prefix.
	Removed []string
}

// Empty reports whether the generated tree introduces no changes.
// Removed-only diffs count as empty, matching the long-standing
// behavior of leaving stale engine files until the next real change.
func (d *Diff) Empty() bool {
	return len(d.Changed) == 0 && len(d.Added) == 0
}

// Compare diffs generatedDir against liveDir by filename and content.
func Compare(generatedDir, liveDir string) (*Diff, error) {
	generated, err := listFiles(generatedDir)
	if err != nil {
		return nil, err
	}
	live, err := listFiles(liveDir)
	if err != nil {
		return nil, err
	}

	diff := &Diff{}
	for _, name := range generated {
		if !contains(live, name) {
			diff.Added = append(diff.Added, name)
			continue
		}
		same, err := sameContent(
			filepath.Join(generatedDir, name),
			filepath.Join(liveDir, name))
		if err != nil {
			return nil, err
		}
		if !same {
			diff.Changed = append(diff.Changed, name)
		}
	}
	for _, name := range live {
		if !contains(generated, name) && strings.HasPrefix(name, autoPrefix) {
			diff.Removed = append(diff.Removed, name)
		}
	}

	sort.Strings(diff.Changed)
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	return diff, nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func contains(sorted []string, name string) bool {
	i := sort.SearchStrings(sorted, name)
	return i < len(sorted) && sorted[i] == name
}

func sameContent(a, b string) (bool, error) {
	da, err := os.ReadFile(a)
	if err != nil {
		return false, err
	}
	db, err := os.ReadFile(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(da, db), nil
}
