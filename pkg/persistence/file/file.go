// Package file provides file-based persistence for local development and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/greenlighthq/greenlight/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface on the file
// system. A process-level mutex backs the conditional status transitions;
// this adapter is meant for a single process (tests, local development).
type Persistence struct {
	root             string
	mu               sync.Mutex
	requestRepo      *RequestRepository
	stepRepo         *StepRepository
	approvalRepo     *ApprovalRepository
	definitionRepo   *DefinitionRepository
	archiveRepo      *ArchiveRepository
	continuationRepo *ContinuationRepository
}

// NewPersistence creates a new instance rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.requestRepo = &RequestRepository{base: p}
	p.stepRepo = &StepRepository{base: p}
	p.approvalRepo = &ApprovalRepository{base: p}
	p.definitionRepo = &DefinitionRepository{base: p}
	p.archiveRepo = &ArchiveRepository{base: p}
	p.continuationRepo = &ContinuationRepository{base: p}

	return p
}

// Close performs any necessary cleanup. For file-based persistence, there is
// nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) RequestRepository() persistence.RequestRepository {
	return p.requestRepo
}

func (p *Persistence) StepRepository() persistence.StepRepository {
	return p.stepRepo
}

func (p *Persistence) ApprovalRepository() persistence.ApprovalRepository {
	return p.approvalRepo
}

func (p *Persistence) DefinitionRepository() persistence.DefinitionRepository {
	return p.definitionRepo
}

func (p *Persistence) ArchiveRepository() persistence.ArchiveRepository {
	return p.archiveRepo
}

func (p *Persistence) ContinuationRepository() persistence.ContinuationRepository {
	return p.continuationRepo
}

func (p *Persistence) dir(kind string) string {
	return filepath.Join(p.root, kind)
}

func (p *Persistence) writeJSON(kind, id string, value any) error {
	dir := p.dir(kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	path := filepath.Join(dir, id+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	return nil
}

// readJSON loads one record; notFound is returned untouched so callers keep
// their sentinel.
func (p *Persistence) readJSON(kind, id string, out any, notFound error) error {
	path := filepath.Join(p.dir(kind), id+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return notFound
		}

		return fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}

	return nil
}

// listIDs returns every record id stored under the given kind.
func (p *Persistence) listIDs(kind string) ([]string, error) {
	entries, err := os.ReadDir(p.dir(kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}

func (p *Persistence) remove(kind, id string) error {
	path := filepath.Join(p.dir(kind), id+".json")

	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s %s: %w", kind, id, err)
	}

	return nil
}
