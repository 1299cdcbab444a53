// Package patch decides which generated files may be written into a
// workspace and which auto-fix edits may be applied to it.
package patch

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/hochfrequenz/vibe-builder/internal/domain"
)

// ErrNoFilesSelected is returned when a selection matches no plan file
var ErrNoFilesSelected = errors.New("no files selected")

// IsSafeRelPath reports whether p is a relative path that cannot escape
// the directory it is joined to.
func IsSafeRelPath(p string) bool {
	if p == "" || strings.Contains(p, "..") {
		return false
	}
	normalized := strings.ReplaceAll(p, `\`, "/")
	if strings.HasPrefix(normalized, "/") || hasDriveLetter(normalized) {
		return false
	}
	cleaned := path.Clean(normalized)
	return cleaned != "." && !strings.HasPrefix(cleaned, "../")
}

func hasDriveLetter(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// SanitizeSelection drops unsafe and repeated entries from a user supplied
// path list, keeping first occurrences in order. It returns nil when nothing
// remains, meaning "no selection".
func SanitizeSelection(paths []string) []string {
	var cleaned []string
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if IsSafeRelPath(p) && !seen[p] {
			seen[p] = true
			cleaned = append(cleaned, p)
		}
	}
	return cleaned
}

// SelectFiles returns the plan files to write. A nil selection picks every
// file with a safe path; otherwise only files named in the selection are
// kept, in plan order.
func SelectFiles(plan *domain.Plan, selection []string) ([]domain.PlanFile, error) {
	wanted := make(map[string]bool, len(selection))
	for _, p := range selection {
		wanted[p] = true
	}

	var files []domain.PlanFile
	for _, f := range plan.Files {
		if !IsSafeRelPath(f.Path) {
			continue
		}
		if len(selection) > 0 && !wanted[f.Path] {
			continue
		}
		files = append(files, f)
	}

	if len(files) == 0 {
		if len(selection) > 0 {
			return nil, fmt.Errorf("%w: none of %d selected paths are in plan %s", ErrNoFilesSelected, len(selection), plan.PlanID)
		}
		return nil, fmt.Errorf("%w: plan %s has no writable files", ErrNoFilesSelected, plan.PlanID)
	}
	return files, nil
}

// Apply filters proposed edits down to the allowed paths. Entries for
// other paths are dropped silently. When a path is proposed twice the
// later content wins.
func Apply(allowed []string, proposed []domain.PlanFile) []domain.PlanFile {
	ok := make(map[string]bool, len(allowed))
	for _, p := range allowed {
		ok[p] = true
	}

	index := make(map[string]int)
	var out []domain.PlanFile
	for _, f := range proposed {
		if !ok[f.Path] {
			continue
		}
		if i, seen := index[f.Path]; seen {
			out[i].Content = f.Content
			continue
		}
		index[f.Path] = len(out)
		out = append(out, f)
	}
	return out
}

// UnifiedDiff renders a git style diff of one file with three lines of
// context.
func UnifiedDiff(oldText, newText, relPath string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldText),
		B:        difflib.SplitLines(newText),
		FromFile: "a/" + relPath,
		ToFile:   "b/" + relPath,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return text
}
