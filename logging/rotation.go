package logging

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Session-based rotation: each application run gets a fresh stintflow.log
// with a header line recording the session start; the previous run's file
// is archived under a timestamped name.

const (
	headerPrefix     = "=== StintFlow session started:"
	headerTimeLayout = "2006-01-02 15:04:05"
	archiveLayout    = "20060102-150405"
)

var headerRe = regexp.MustCompile(`^=== StintFlow session started: (\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) ===$`)

// ParseSessionStart returns the session start time recorded in the first
// line of the file at path, or the zero time when the file is missing or
// carries no header.
func ParseSessionStart(path string) time.Time {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return time.Time{}
	}

	m := headerRe.FindStringSubmatch(strings.TrimRight(scanner.Text(), "\n"))
	if m == nil {
		return time.Time{}
	}

	ts, err := time.ParseInLocation(headerTimeLayout, m[1], time.Local)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// RotateSessionLog archives the log file at path, if present and
// non-empty, as stintflow-YYYYMMDD-HHMMSS.log in the same directory. The
// archive timestamp prefers the recorded session start, falling back to
// the file's modification time. Name collisions get a counter suffix.
func RotateSessionLog(path string, now time.Time) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() == 0 {
		return nil
	}

	stamp := ParseSessionStart(path)
	if stamp.IsZero() {
		stamp = info.ModTime()
	}
	if stamp.IsZero() {
		stamp = now
	}

	dir := filepath.Dir(path)
	base := stamp.Format(archiveLayout)
	dest := filepath.Join(dir, fmt.Sprintf("stintflow-%s.log", base))
	for counter := 1; ; counter++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			break
		}
		dest = filepath.Join(dir, fmt.Sprintf("stintflow-%s_%d.log", base, counter))
	}

	return os.Rename(path, dest)
}

// PurgeOldArchives removes archived session logs in dir whose
// modification time is older than retentionDays. The active
// stintflow.log is never touched; only files named stintflow-*.log are
// considered. Errors are best-effort and swallowed.
func PurgeOldArchives(dir string, retentionDays int, now time.Time) {
	if retentionDays <= 0 {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	cutoff := now.AddDate(0, 0, -retentionDays)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "stintflow-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(dir, name))
		}
	}
}

func writeSessionHeader(f *os.File, now time.Time) error {
	_, err := fmt.Fprintf(f, "%s %s ===\n", headerPrefix, now.Format(headerTimeLayout))
	return err
}
