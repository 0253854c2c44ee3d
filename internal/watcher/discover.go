package watcher

import (
	"cmp"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultSearchPatterns lists the places DJ software and now-playing plugins
// commonly write their status file.
var DefaultSearchPatterns = []string{
	"~/Music/_Serato_/**/*.txt",
	"~/Documents/VirtualDJ/**/*now*playing*.txt",
	"~/Documents/**/now*playing*.txt",
	"~/Desktop/**/now*playing*.txt",
	"~/Music/**/now*playing*.txt",
}

// ErrNoTextFile is returned when no candidate file is found.
var ErrNoTextFile = errors.New("no now-playing text file found")

// FileCandidate is a discovered now-playing file.
type FileCandidate struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
}

// DiscoverTextFiles returns deduplicated regular files matching any pattern,
// most recently modified first. A leading ~ expands to the home directory.
func DiscoverTextFiles(patterns []string) ([]FileCandidate, error) {
	if len(patterns) == 0 {
		patterns = DefaultSearchPatterns
	}
	seen := make(map[string]bool)
	var result []FileCandidate

	for _, pattern := range patterns {
		pattern, err := expandPattern(pattern)
		if err != nil {
			return nil, err
		}

		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, err
		}

		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				continue
			}
			info, err := os.Stat(abs)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if !seen[abs] {
				seen[abs] = true
				result = append(result, FileCandidate{Path: abs, ModTime: info.ModTime(), Size: info.Size()})
			}
		}
	}

	slices.SortStableFunc(result, func(a, b FileCandidate) int {
		if c := b.ModTime.Compare(a.ModTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	return result, nil
}

// ActiveTextFile returns the newest candidate modified within maxAge.
// A non-positive maxAge accepts any age.
func ActiveTextFile(patterns []string, maxAge time.Duration) (FileCandidate, error) {
	found, err := DiscoverTextFiles(patterns)
	if err != nil {
		return FileCandidate{}, err
	}
	if len(found) == 0 {
		return FileCandidate{}, ErrNoTextFile
	}
	newest := found[0]
	if maxAge > 0 && time.Since(newest.ModTime) > maxAge {
		return FileCandidate{}, ErrNoTextFile
	}
	return newest, nil
}

func expandPattern(pattern string) (string, error) {
	if pattern == "~" || strings.HasPrefix(pattern, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		pattern = filepath.Join(home, strings.TrimPrefix(pattern, "~"))
	}
	if !filepath.IsAbs(pattern) {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		pattern = filepath.Join(wd, pattern)
	}
	return pattern, nil
}
