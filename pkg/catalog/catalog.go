package catalog

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Catalog is the combined list of compiled-in and discovered tool factories.
// The list is computed by the first successful Load and reused afterwards.
type Catalog struct {
	root       string
	discoverer *Discoverer
	logger     zerolog.Logger

	mu        sync.Mutex
	loaded    bool
	factories []Factory
}

// New creates a catalog over root. An empty root disables filesystem
// discovery; only compiled-in tools are listed.
func New(root string, discoverer *Discoverer, logger zerolog.Logger) *Catalog {
	return &Catalog{
		root:       root,
		discoverer: discoverer,
		logger:     logger.With().Str("component", "catalog").Logger(),
	}
}

// Root returns the discovery root.
func (c *Catalog) Root() string {
	return c.root
}

// Load returns the catalog's factories, discovering them on the first call.
// A failed discovery is not cached.
func (c *Catalog) Load(ctx context.Context) ([]Factory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return c.snapshot(), nil
	}
	return c.rebuildLocked(ctx)
}

// Rebuild discards the cached list and discovers again. On failure the
// previous list is kept.
func (c *Catalog) Rebuild(ctx context.Context) ([]Factory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebuildLocked(ctx)
}

func (c *Catalog) rebuildLocked(ctx context.Context) ([]Factory, error) {
	all := Compiled()

	if c.root != "" && c.discoverer != nil {
		discovered, err := c.discoverer.Discover(ctx, c.root)
		if err != nil {
			c.logger.Error().Err(err).Str("root", c.root).Msg("Tool discovery failed")
			return nil, err
		}
		all = append(all, discovered...)
	} else {
		c.logger.Debug().Msg("No tools directory configured, using compiled-in tools only")
	}

	c.factories = all
	c.loaded = true

	c.logger.Info().Int("count", len(all)).Msg("Catalog loaded")
	return c.snapshot(), nil
}

func (c *Catalog) snapshot() []Factory {
	out := make([]Factory, len(c.factories))
	copy(out, c.factories)
	return out
}
