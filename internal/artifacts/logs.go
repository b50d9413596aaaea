package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// LatestLog returns the name (relative to the log dir) and non-empty lines of
// the newest autopsy log. Log files are named with a sortable timestamp, so
// "newest" is the lexically greatest name matching the configured pattern.
func (r *Reader) LatestLog() (string, []string, error) {
	logDir := filepath.Join(r.dir, r.logs.Dir)
	info, err := os.Stat(logDir)
	if err != nil || !info.IsDir() {
		return "", nil, fmt.Errorf("%s: %w", r.logs.Dir, ErrNotFound)
	}

	fsys := os.DirFS(logDir)
	matches, err := doublestar.Glob(fsys, r.logs.Pattern)
	if err != nil {
		return "", nil, fmt.Errorf("glob %q: %w", r.logs.Pattern, err)
	}

	var files []string
	for _, m := range matches {
		st, err := fs.Stat(fsys, m)
		if err != nil || !st.Mode().IsRegular() {
			continue
		}
		files = append(files, m)
	}
	if len(files) == 0 {
		return "", nil, fmt.Errorf("%s: no log files: %w", r.logs.Dir, ErrNotFound)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	latest := files[0]

	data, err := fs.ReadFile(fsys, latest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("%s: %w", latest, ErrNotFound)
		}
		return "", nil, fmt.Errorf("read log %s: %w", latest, err)
	}
	return latest, SplitLines(string(data)), nil
}

// SplitLines splits s on line boundaries and drops empty lines.
func SplitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
