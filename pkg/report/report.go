// Package report writes Allure-compatible result documents for executed
// checks.
package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ethpandaops/dupcheck/pkg/executor"
	"github.com/ethpandaops/dupcheck/pkg/fsutil"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	// ResultSuffix is appended to the uuid of every result document.
	ResultSuffix = "-result.json"
	// DetailsSuffix is appended to the uuid of every detail attachment.
	DetailsSuffix = "-details.txt"

	// BranchLabel is the label name carrying the checked branch.
	BranchLabel = "branch"

	stepName       = "Execute SQL"
	attachmentName = "Details"
	attachmentType = "text/plain"
)

// Document is a single result document.
type Document struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Status      string       `json:"status"`
	Steps       []Step       `json:"steps"`
	Attachments []Attachment `json:"attachments"`
	Labels      []Label      `json:"labels"`
	UUID        string       `json:"uuid"`
	Start       int64        `json:"start"`
	Stop        int64        `json:"stop"`
}

// Step records the single execution step of a check.
type Step struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Attachment references a sibling file in the report directory.
type Attachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// Label is a name/value pair attached to a document.
type Label struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Label returns the value of the first label called name.
func (d *Document) Label(name string) string {
	for _, l := range d.Labels {
		if l.Name == name {
			return l.Value
		}
	}

	return ""
}

// Config for the emitter.
type Config struct {
	Dir   string
	Owner *fsutil.OwnerConfig
	// Clean removes documents of a previous run before emitting.
	Clean bool
}

// Emitter converts execution results into documents on disk.
type Emitter interface {
	// Emit writes one document per result, plus a details attachment for
	// results with a non-empty detail.
	Emit(results []*executor.Result, branch string) ([]*Document, error)
}

// NewEmitter creates a new emitter writing to fs.
func NewEmitter(log logrus.FieldLogger, fs afero.Fs, cfg *Config) Emitter {
	return &emitter{
		log:   log.WithField("component", "report"),
		fs:    fs,
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

type emitter struct {
	log   logrus.FieldLogger
	fs    afero.Fs
	cfg   *Config
	now   func() time.Time
	newID func() string
}

// Ensure interface compliance.
var _ Emitter = (*emitter)(nil)

// Emit implements Emitter.
func (e *emitter) Emit(results []*executor.Result, branch string) ([]*Document, error) {
	if e.cfg.Clean {
		if err := fsutil.ResetDir(e.fs, e.cfg.Dir, e.cfg.Owner); err != nil {
			return nil, fmt.Errorf("resetting report directory: %w", err)
		}
	} else if err := fsutil.MkdirAll(e.fs, e.cfg.Dir, 0755, e.cfg.Owner); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}

	docs := make([]*Document, 0, len(results))

	for _, result := range results {
		doc, err := e.write(result, branch)
		if err != nil {
			return nil, fmt.Errorf("writing report for %s: %w", result.Check.ID, err)
		}

		docs = append(docs, doc)
	}

	e.log.WithFields(logrus.Fields{
		"dir":       e.cfg.Dir,
		"documents": len(docs),
	}).Info("Report written")

	return docs, nil
}

func (e *emitter) write(result *executor.Result, branch string) (*Document, error) {
	id := e.newID()
	stamp := e.now().UnixMilli()
	status := string(result.Status)

	doc := &Document{
		Name:        result.Check.FileName,
		Description: result.Summary,
		Status:      status,
		Steps:       []Step{{Name: stepName, Status: status}},
		Attachments: []Attachment{},
		Labels:      []Label{{Name: BranchLabel, Value: branch}},
		UUID:        id,
		Start:       stamp,
		Stop:        stamp,
	}

	if result.Detail != "" {
		source := id + DetailsSuffix

		path := filepath.Join(e.cfg.Dir, source)
		if err := fsutil.WriteFile(e.fs, path, []byte(result.Detail), 0644, e.cfg.Owner); err != nil {
			return nil, fmt.Errorf("writing attachment: %w", err)
		}

		doc.Attachments = append(doc.Attachments, Attachment{
			Name:   attachmentName,
			Source: source,
			Type:   attachmentType,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling document: %w", err)
	}

	path := filepath.Join(e.cfg.Dir, id+ResultSuffix)
	if err := fsutil.WriteFile(e.fs, path, data, 0644, e.cfg.Owner); err != nil {
		return nil, fmt.Errorf("writing document: %w", err)
	}

	return doc, nil
}

// Load reads every result document in dir, sorted by name.
func Load(fs afero.Fs, dir string) ([]*Document, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("reading report directory: %w", err)
	}

	docs := make([]*Document, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ResultSuffix) {
			continue
		}

		data, err := afero.ReadFile(fs, filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", entry.Name(), err)
		}

		docs = append(docs, &doc)
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Name < docs[j].Name
	})

	return docs, nil
}

// Detail returns the details attachment content of doc, if any.
func Detail(fs afero.Fs, dir string, doc *Document) (string, error) {
	for _, a := range doc.Attachments {
		if a.Name != attachmentName {
			continue
		}

		data, err := afero.ReadFile(fs, filepath.Join(dir, a.Source))
		if err != nil {
			return "", fmt.Errorf("reading attachment: %w", err)
		}

		return string(data), nil
	}

	return "", nil
}
