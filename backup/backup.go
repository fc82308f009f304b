// Package backup keeps rotating copies of files under a hidden .backup directory
// next to the original. Each file keeps at most MaxBackupVersions copies.
package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/skycode/skypanel/config"
	"github.com/skycode/skypanel/guard"
	"github.com/skycode/skypanel/internal"
	"github.com/skycode/skypanel/types"
)

const (
	DirName         = ".backup"
	TimestampLayout = "20060102150405"
	suffix          = ".bak"

	maxPublishAttempts = 1000

	errStatSource  = "failed to stat %s: %w"
	errNotRegular  = "%s is not a regular file"
	errListBackups = "failed to list backups in %s: %w"
	errCopy        = "failed to copy %s into %s: %w"
	errNoFreeName  = "no free backup name after %d attempts"
)

// Entry is one backup copy of a file. Seq is non-zero only when several copies
// were taken within the same second.
type Entry struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Seq       int       `json:"seq"`

	stamp string
}

type Manager struct {
	guard       *guard.Guard
	maxVersions int
	clock       Clock
	logger      *zap.SugaredLogger
	metrics     *internal.Metrics
}

func New(cfg config.Config, g *guard.Guard) *Manager {
	return &Manager{
		guard:       g,
		maxVersions: cfg.MaxBackupVersions,
		clock:       NewRealClock(),
		logger:      zap.NewNop().Sugar(),
	}
}

func (m *Manager) WithClock(c Clock) *Manager {
	m.clock = c
	return m
}

func (m *Manager) WithLogger(l *zap.SugaredLogger) *Manager {
	if l != nil {
		m.logger = l
	}
	return m
}

func (m *Manager) WithMetrics(metrics *internal.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Dir returns the backup directory used for filePath.
func Dir(filePath string) string {
	return filepath.Join(filepath.Dir(filePath), DirName)
}

// BackupFile copies filePath into its .backup directory as
// <base>.<YYYYMMDDHHMMSS>.bak and returns the new path. Older copies beyond the
// retention cap are evicted first; a failed eviction is logged and does not stop
// the new copy. The call is not serialised; wrap it in a file lock together with
// the mutation it protects.
func (m *Manager) BackupFile(filePath string) (string, error) {
	if err := m.guard.EnsurePathAllowed(filePath); err != nil {
		return "", err
	}

	abs, err := filepath.Abs(filePath)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf(errStatSource, abs, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf(errNotRegular, abs)
	}

	dir := Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &types.ResourceUnavailableError{Resource: dir, Err: err}
	}

	base := filepath.Base(abs)
	existing, err := listEntries(dir, base)
	if err != nil {
		return "", &types.ResourceUnavailableError{Resource: dir, Err: err}
	}

	m.evict(existing)

	stamp, seq := nextSeq(m.clock.Now(), existing)
	dst, err := copyFile(abs, dir, info, func(n int) string {
		return filepath.Join(dir, entryName(base, stamp, seq+n))
	})
	if err != nil {
		return "", fmt.Errorf(errCopy, abs, dir, err)
	}

	m.metrics.IncBackupsCreated()
	m.logger.Infow("backup created", "file", abs, "backup", dst)

	return dst, nil
}

// List returns the backups of filePath, newest first.
func (m *Manager) List(filePath string) ([]Entry, error) {
	if err := m.guard.EnsurePathAllowed(filePath); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(filePath)
	if err != nil {
		return nil, err
	}

	entries, err := listEntries(Dir(abs), filepath.Base(abs))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return entries, err
}

// evict removes everything past the newest maxVersions-1 entries so that the
// copy about to be written brings the set back to exactly maxVersions.
func (m *Manager) evict(entries []Entry) {
	keep := m.maxVersions - 1
	if keep < 0 {
		keep = 0
	}
	if len(entries) <= keep {
		return
	}

	var removed, failed int
	for _, old := range entries[keep:] {
		if err := os.Remove(old.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			failed++
			m.logger.Warnw("failed to evict backup", "backup", old.Path, "error", err)
			continue
		}
		removed++
		m.logger.Debugw("backup evicted", "backup", old.Path)
	}

	m.metrics.AddBackupsEvicted(removed)
	m.metrics.AddEvictionFailures(failed)
}

func backupPattern(base string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `\.(\d{14})(?:\.(\d+))?` + regexp.QuoteMeta(suffix) + `$`)
}

// listEntries reads the backup set of base from dir, newest first. Files that do
// not follow the naming scheme, including backups of other files that merely share
// a prefix with base, are ignored.
func listEntries(dir, base string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf(errListBackups, dir, err)
	}

	pattern := backupPattern(base)

	var result []Entry
	for _, de := range dirEntries {
		match := pattern.FindStringSubmatch(de.Name())
		if match == nil {
			continue
		}

		ts, err := time.ParseInLocation(TimestampLayout, match[1], time.Local)
		if err != nil {
			continue
		}

		seq := 0
		if match[2] != "" {
			if seq, err = strconv.Atoi(match[2]); err != nil {
				continue
			}
		}

		result = append(result, Entry{
			Name:      de.Name(),
			Path:      filepath.Join(dir, de.Name()),
			Timestamp: ts,
			Seq:       seq,
			stamp:     match[1],
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].stamp != result[j].stamp {
			return result[i].stamp > result[j].stamp
		}
		return result[i].Seq > result[j].Seq
	})

	return result, nil
}

// nextSeq picks the stamp and first sequence number for the new copy. A second
// copy within the same second gets the next sequence number so it still sorts
// after every earlier copy.
func nextSeq(now time.Time, existing []Entry) (string, int) {
	stamp := now.Format(TimestampLayout)

	seq := 0
	for _, e := range existing {
		if e.stamp == stamp && e.Seq >= seq {
			seq = e.Seq + 1
		}
	}
	return stamp, seq
}

func entryName(base, stamp string, seq int) string {
	if seq == 0 {
		return base + "." + stamp + suffix
	}
	return fmt.Sprintf("%s.%s.%d%s", base, stamp, seq, suffix)
}

// copyFile writes src to a temp file in dir, carries over the permission bits and
// modification time, then hard-links it under the first free name(n) for
// n = 0, 1, ... An existing backup is never replaced, even by a concurrent call.
func copyFile(src, dir string, info fs.FileInfo, name func(n int) string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(src)+".*.tmp")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()

	// The temp name goes away on every path; a published copy lives on as its link.
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return "", err
	}
	if err := os.Chtimes(tmpName, info.ModTime(), info.ModTime()); err != nil {
		return "", err
	}

	for n := 0; n < maxPublishAttempts; n++ {
		dst := name(n)
		err := os.Link(tmpName, dst)
		if err == nil {
			return dst, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
	}
	return "", fmt.Errorf(errNoFreeName, maxPublishAttempts)
}
