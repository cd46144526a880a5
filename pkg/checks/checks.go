// Package checks discovers duplicate-detection queries on disk.
package checks

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Extension is the suffix every check file carries.
const Extension = ".sql"

// ErrNoChecks is returned when the tests directory holds no check files.
var ErrNoChecks = errors.New("no check files found")

// Definition is a single discovered check. It is immutable once discovered.
type Definition struct {
	// ID is the file name without extension, e.g. "dup_orders".
	ID string
	// FileName is the base file name, e.g. "dup_orders.sql".
	FileName string
	// Path is the file path the query was read from.
	Path string
	// Query is the raw file content.
	Query string
}

// Discover reads every <prefix>*.sql file directly inside dir, sorted by
// file name.
func Discover(fs afero.Fs, log logrus.FieldLogger, dir, prefix string) ([]Definition, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("tests directory %q does not exist", dir)
		}

		return nil, fmt.Errorf("reading tests directory: %w", err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Only include .sql files.
		if !strings.EqualFold(filepath.Ext(name), Extension) {
			continue
		}

		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}

		names = append(names, name)
	}

	sort.Strings(names)

	defs := make([]Definition, 0, len(names))

	for _, name := range names {
		path := filepath.Join(dir, name)

		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("reading check %s: %w", name, err)
		}

		defs = append(defs, Definition{
			ID:       strings.TrimSuffix(name, filepath.Ext(name)),
			FileName: name,
			Path:     path,
			Query:    string(data),
		})
	}

	log.WithFields(logrus.Fields{
		"dir":    dir,
		"prefix": prefix,
		"count":  len(defs),
	}).Info("Discovered checks")

	if len(defs) == 0 {
		return nil, ErrNoChecks
	}

	return defs, nil
}
