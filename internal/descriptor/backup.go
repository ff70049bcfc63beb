package descriptor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const DefaultRetention = 5

// Backups keeps timestamped copies of the descriptor taken before each
// overwrite. Backups are only ever removed by count-based pruning.
type Backups struct {
	Dir       string
	Retention int
}

// Backup copies the file at path into the backup directory and returns
// the backup path. A missing source is not an error: it returns ("", nil)
// so a first enable proceeds without a backup.
func (bk Backups) Backup(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read descriptor for backup: %w", err)
	}
	if err := os.MkdirAll(bk.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	// Millisecond-resolution, zero-padded stamp: lexicographic order is
	// chronological order.
	name := fmt.Sprintf("%s.%s.bak", filepath.Base(path), time.Now().UTC().Format("20060102T150405.000"))
	dst := filepath.Join(bk.Dir, name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return dst, nil
}

// Prune removes the oldest backups beyond the retention count.
func (bk Backups) Prune() error {
	names, err := bk.list()
	if err != nil || len(names) == 0 {
		return err
	}
	keep := bk.Retention
	if keep < 1 {
		keep = DefaultRetention
	}
	for i := 0; i < len(names)-keep; i++ {
		if err := os.Remove(filepath.Join(bk.Dir, names[i])); err != nil {
			return fmt.Errorf("prune backup: %w", err)
		}
	}
	return nil
}

// Latest returns the newest backup path, or "" when none exist.
func (bk Backups) Latest() (string, error) {
	names, err := bk.list()
	if err != nil || len(names) == 0 {
		return "", err
	}
	return filepath.Join(bk.Dir, names[len(names)-1]), nil
}

func (bk Backups) list() ([]string, error) {
	entries, err := os.ReadDir(bk.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".bak") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
