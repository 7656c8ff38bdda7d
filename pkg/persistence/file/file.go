// Package file provides a file-based persistence implementation. Each
// collection is a directory under the root, each entity one JSON document.
// Intended for development, tests and small single-node deployments.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/beaconops/flock/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root            string
	postRepo        *ScheduledPostRepository
	taskRepo        *AutomationTaskRepository
	workflowRepo    *WorkflowRepository
	logRepo         *LogRepository
	accountRepo     *AccountRepository
	resumptionRepo  *ResumptionRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// A "file://" prefix is accepted and stripped.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.TrimPrefix(root, "file://")

	return &Persistence{
		root:           cleanRoot,
		postRepo:       &ScheduledPostRepository{col: newCollection(cleanRoot, "scheduled_posts")},
		taskRepo:       &AutomationTaskRepository{col: newCollection(cleanRoot, "automation_tasks")},
		workflowRepo:   newWorkflowRepository(cleanRoot),
		logRepo:        newLogRepository(cleanRoot),
		accountRepo:    &AccountRepository{col: newCollection(cleanRoot, "accounts")},
		resumptionRepo: &ResumptionRepository{col: newCollection(cleanRoot, "resumptions")},
	}
}

func (p *Persistence) ScheduledPosts() persistence.ScheduledPostRepository { return p.postRepo }

func (p *Persistence) AutomationTasks() persistence.AutomationTaskRepository { return p.taskRepo }

func (p *Persistence) Workflows() persistence.WorkflowRepository { return p.workflowRepo }

func (p *Persistence) Logs() persistence.LogRepository { return p.logRepo }

func (p *Persistence) Accounts() persistence.AccountRepository { return p.accountRepo }

func (p *Persistence) Resumptions() persistence.ResumptionRepository { return p.resumptionRepo }

// HealthCheck verifies the root directory exists, creating it when missing.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return os.MkdirAll(p.root, 0o755)
}

// Close performs any necessary cleanup. Nothing to clean up for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// collection stores one entity kind as JSON documents in a directory. All
// read-modify-write sequences against a collection happen under its mutex.
type collection struct {
	dir string
	mu  sync.RWMutex
}

func newCollection(root, name string) *collection {
	return &collection{dir: filepath.Join(root, name)}
}

func (c *collection) path(id string) string {
	return filepath.Join(c.dir, id+".json")
}

func readDoc[T any](c *collection, id string) (*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return readDocLocked[T](c, id)
}

func readDocLocked[T any](c *collection, id string) (*T, error) {
	data, err := os.ReadFile(c.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read document %s: %w", id, err)
	}

	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}

	return &doc, nil
}

func writeDoc[T any](c *collection, id string, doc *T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return writeDocLocked(c, id, doc)
}

func writeDocLocked[T any](c *collection, id string, doc *T) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create collection directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", id, err)
	}

	if err := os.WriteFile(c.path(id), data, 0o644); err != nil {
		return fmt.Errorf("failed to write document %s: %w", id, err)
	}

	return nil
}

func readAll[T any](c *collection) ([]*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		return []*T{}, nil
	}

	root := os.DirFS(c.dir)

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list collection %s: %w", c.dir, err)
	}

	docs := make([]*T, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id := strings.TrimSuffix(file, ".json")

		doc, err := readDocLocked[T](c, id)
		if err != nil {
			return nil, err
		}

		if doc != nil {
			docs = append(docs, doc)
		}
	}

	return docs, nil
}

func deleteDoc(c *collection, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Remove(c.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}

	return nil
}
