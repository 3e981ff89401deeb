package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
)

// Discovery failure reasons passed to the failure hook.
const (
	FailureRead        = "read"
	FailureParse       = "parse"
	FailureInvalid     = "invalid"
	FailureUnknownKind = "unknown_kind"
	FailureBuild       = "build"
)

// FailureHook is notified about every manifest file or entry discovery skips.
type FailureHook func(reason string)

// Discoverer scans a directory tree for tool manifests.
type Discoverer struct {
	logger    zerolog.Logger
	parser    *ManifestParser
	onFailure FailureHook
}

// DiscovererOption configures a Discoverer.
type DiscovererOption func(*Discoverer)

// WithFailureHook sets the hook called for every skipped file or entry.
func WithFailureHook(hook FailureHook) DiscovererOption {
	return func(d *Discoverer) {
		d.onFailure = hook
	}
}

// NewDiscoverer creates a discoverer.
func NewDiscoverer(logger zerolog.Logger, opts ...DiscovererOption) (*Discoverer, error) {
	parser, err := NewManifestParser()
	if err != nil {
		return nil, err
	}
	d := &Discoverer{
		logger: logger.With().Str("component", "tool-discovery").Logger(),
		parser: parser,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Scan walks root recursively and returns the paths of manifest files
// relative to root, sorted. A root that does not exist or is not a directory
// is an error.
func (d *Discoverer) Scan(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tools directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			d.logger.Warn().Err(err).Str("path", path).Msg("Failed to read path, skipping")
			d.failed(FailureRead)
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !IsManifestFile(entry.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan tools directory %s: %w", root, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// Discover scans root and builds a factory for every valid manifest entry.
// Unreadable files, malformed files and nonconforming entries are logged and
// skipped; only a failure to scan root itself is returned.
func (d *Discoverer) Discover(ctx context.Context, root string) ([]Factory, error) {
	paths, err := d.Scan(root)
	if err != nil {
		return nil, err
	}

	var discovered []Factory
	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		discovered = append(discovered, d.load(root, rel)...)
	}

	d.logger.Info().
		Str("root", root).
		Int("files", len(paths)).
		Int("tools", len(discovered)).
		Msg("Tool discovery completed")

	return discovered, nil
}

// load builds the factories of one manifest file.
func (d *Discoverer) load(root, rel string) []Factory {
	logger := d.logger.With().Str("file", rel).Logger()

	path := filepath.Join(root, filepath.FromSlash(rel))
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		dir = filepath.Dir(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read manifest, skipping")
		d.failed(FailureRead)
		return nil
	}

	entries, err := d.parser.Entries(rel, data)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to parse manifest, skipping")
		d.failed(FailureParse)
		return nil
	}

	var out []Factory
	for i, entry := range entries {
		m, err := d.parser.Parse(entry)
		if err != nil {
			logger.Warn().Err(err).Int("entry", i).Msg("Invalid manifest entry, skipping")
			d.failed(FailureInvalid)
			continue
		}
		m.Source = rel
		m.Dir = dir

		factory, err := build(m)
		if err != nil {
			reason := FailureBuild
			if errors.Is(err, errUnknownKind) {
				reason = FailureUnknownKind
			}
			logger.Warn().Err(err).Str("tool", m.Name).Str("kind", m.Kind).Msg("Failed to build tool, skipping")
			d.failed(reason)
			continue
		}

		logger.Debug().Str("tool", m.Name).Str("kind", m.Kind).Msg("Discovered tool")
		out = append(out, factory)
	}
	return out
}

func (d *Discoverer) failed(reason string) {
	if d.onFailure != nil {
		d.onFailure(reason)
	}
}

var errUnknownKind = errors.New("unknown tool kind")

// build resolves the manifest's kind and checks that the resulting factory
// produces a tool with the manifest's name.
func build(m Manifest) (factory Factory, err error) {
	b, ok := builderFor(m.Kind)
	if !ok {
		return nil, fmt.Errorf("%w %q", errUnknownKind, m.Kind)
	}

	defer func() {
		if r := recover(); r != nil {
			factory = nil
			err = fmt.Errorf("builder panicked: %v", r)
		}
	}()

	factory, err = b(m)
	if err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, errors.New("builder returned nil factory")
	}

	probe := factory()
	if probe == nil {
		return nil, errors.New("factory returned nil tool")
	}
	if got := probe.Definition().Name; got != m.Name {
		return nil, fmt.Errorf("factory built tool %q, manifest declares %q", got, m.Name)
	}
	return factory, nil
}
