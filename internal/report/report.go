// Package report persists closed-session transcripts as dated text files and
// serves them back for listing and viewing.
package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio/v2"
)

const ext = ".txt"

var (
	ErrInvalidName = errors.New("invalid report name")
	ErrNotFound    = errors.New("report not found")
)

// Store reads and writes reports below a root directory laid out as
// YYYY/MM/DD/HH-MM-SS_<connID>.txt.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string { return s.root }

// Name builds the slash-separated report name for a session closed at t.
func Name(t time.Time, connID string) string {
	return t.Format("2006/01/02/15-04-05") + "_" + connID + ext
}

// Write stores the newline-joined finals in a single atomic write and
// returns the report name. An existing report with the same name is
// replaced.
func (s *Store) Write(at time.Time, connID string, finals []string) (string, error) {
	name := Name(at, connID)
	if connID == "" || strings.ContainsAny(connID, `/\`) {
		return "", fmt.Errorf("connection id %q: %w", connID, ErrInvalidName)
	}
	if err := ValidateName(name); err != nil {
		return "", fmt.Errorf("connection id %q: %w", connID, err)
	}
	full := filepath.Join(s.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	if err := renameio.WriteFile(full, []byte(strings.Join(finals, "\n")), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return name, nil
}

// ValidateName rejects names that could escape the report root. It does not
// touch the filesystem.
func ValidateName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.ContainsRune(name, 0) {
		return ErrInvalidName
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return ErrInvalidName
	}
	return nil
}

// List returns every report name below the root, newest first.
func (s *Store) List() ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == s.root {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Read returns the content of a report. The name is validated before any
// filesystem access.
func (s *Store) Read(name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if !strings.HasSuffix(name, ext) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(name)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read report: %w", err)
	}
	return data, nil
}
