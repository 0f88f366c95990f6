package assetstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tendant/assetstore/pkg/assetstore/layout"
)

// AssetDirName is the directory under a project root holding the asset store.
const AssetDirName = "assets"

// projectNamespace seeds deterministic project IDs.
var projectNamespace = uuid.MustParse("6f1c7f1e-4a53-5b8e-9d0e-7a1f1c2b9e44")

// Project is the scope every asset operation runs in. It is opened when the
// application opens a project and closed when the project is closed; once
// closed, operations bound to it fail with ErrNoActiveProject.
type Project struct {
	ID   uuid.UUID
	Name string
	Root string

	layout layout.Layout
	open   atomic.Bool
}

// ProjectOption configures OpenProject.
type ProjectOption func(*Project) error

// WithShardLength overrides the shard prefix length of the project store.
func WithShardLength(n int) ProjectOption {
	return func(p *Project) error {
		l, err := layout.New(p.layout.Root, n)
		if err != nil {
			return err
		}
		p.layout = l
		return nil
	}
}

// OpenProject opens the project rooted at root, creating its asset directory
// if needed. The project ID is derived from the absolute root so reopening
// the same directory yields the same ID.
func OpenProject(root, name string, opts ...ProjectOption) (*Project, error) {
	if root == "" {
		return nil, fmt.Errorf("project root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	if name == "" {
		name = filepath.Base(abs)
	}

	l, err := layout.New(filepath.Join(abs, AssetDirName), layout.DefaultShardLength)
	if err != nil {
		return nil, err
	}
	p := &Project{
		ID:     uuid.NewSHA1(projectNamespace, []byte(abs)),
		Name:   name,
		Root:   abs,
		layout: l,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(p.layout.Root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory: %w", err)
	}
	p.open.Store(true)
	return p, nil
}

// AssetRoot returns the root of the project's sharded store.
func (p *Project) AssetRoot() string {
	return p.layout.Root
}

// Layout returns the path layout of the project's store.
func (p *Project) Layout() layout.Layout {
	return p.layout
}

// Active reports whether the project is open. A nil project is never active.
func (p *Project) Active() bool {
	return p != nil && p.open.Load()
}

// Close marks the project closed. Closing twice is harmless.
func (p *Project) Close() error {
	if p != nil {
		p.open.Store(false)
	}
	return nil
}
