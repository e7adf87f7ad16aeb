// Package config loads rule and workflow definitions from disk.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dukex/escalate/pkg/models"
	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFormat = errors.New("unsupported definition file format")

// Document is the content of one definitions file.
type Document struct {
	Workflows []*models.Workflow `json:"workflows" yaml:"workflows"`
	Rules     []*models.Rule     `json:"rules"     yaml:"rules"`
}

// Registrar receives loaded definitions.
type Registrar interface {
	RegisterWorkflow(ctx context.Context, workflow *models.Workflow) error
	RegisterRule(ctx context.Context, rule *models.Rule) error
}

// LoadResult summarizes one load pass.
type LoadResult struct {
	Files     int
	Workflows int
	Rules     int
}

// Loader reads *.yaml, *.yml and *.json files from a directory, or a single
// file, and registers their definitions.
type Loader struct {
	path      string
	registrar Registrar
	logger    *slog.Logger
}

func NewLoader(path string, registrar Registrar, logger *slog.Logger) *Loader {
	return &Loader{
		path:      path,
		registrar: registrar,
		logger:    logger.With("module", "definitions_loader", "path", path),
	}
}

// Load registers every workflow before any rule, so rules may reference
// workflows defined in other files. Definitions must carry an id so that a
// reload replaces them in place. A definition that fails validation does not
// stop the others; all failures are joined into the returned error.
func (l *Loader) Load(ctx context.Context) (LoadResult, error) {
	files, err := definitionFiles(l.path)
	if err != nil {
		return LoadResult{}, err
	}

	result := LoadResult{Files: len(files)}

	var (
		errs      []error
		workflows []*models.Workflow
		rules     []*models.Rule
	)

	for _, file := range files {
		doc, err := ReadDocument(file)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for i, workflow := range doc.Workflows {
			if workflow == nil || workflow.ID == "" {
				errs = append(errs, missingID("workflow", file, i))
				continue
			}

			workflows = append(workflows, workflow)
		}

		for i, rule := range doc.Rules {
			if rule == nil || rule.ID == "" {
				errs = append(errs, missingID("rule", file, i))
				continue
			}

			rules = append(rules, rule)
		}
	}

	for _, workflow := range workflows {
		if err := l.registrar.RegisterWorkflow(ctx, workflow); err != nil {
			errs = append(errs, err)
			continue
		}

		result.Workflows++
	}

	for _, rule := range rules {
		if err := l.registrar.RegisterRule(ctx, rule); err != nil {
			errs = append(errs, err)
			continue
		}

		result.Rules++
	}

	l.logger.Info("Loaded definitions",
		"files", result.Files,
		"workflows", result.Workflows,
		"rules", result.Rules,
		"errors", len(errs))

	return result, errors.Join(errs...)
}

func missingID(entity, file string, index int) error {
	return &models.ValidationError{
		Entity:     entity,
		Violations: []string{fmt.Sprintf("%s: entry %d: id is required", file, index)},
	}
}

// ReadDocument parses one definitions file by extension.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions file %s: %w", path, err)
	}

	var doc Document

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	case ".json":
		err = json.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse definitions file %s: %w", path, err)
	}

	return &doc, nil
}

func definitionFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat definitions path %s: %w", path, err)
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory %s: %w", path, err)
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}

	slices.Sort(files)

	return files, nil
}
