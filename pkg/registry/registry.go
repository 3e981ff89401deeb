package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/toolhost/internal/tracing"
	"github.com/harun/toolhost/pkg/catalog"
	"github.com/harun/toolhost/pkg/tool"
)

const tracerName = "github.com/harun/toolhost/pkg/registry"

// Call outcomes reported to the Observer.
const (
	OutcomeSuccess        = "success"
	OutcomeToolError      = "tool_error"
	OutcomeInvalidParams  = "invalid_params"
	OutcomeMethodNotFound = "method_not_found"
	OutcomeInternalError  = "internal_error"
)

// Observer receives registry activity, typically to export metrics.
type Observer interface {
	ToolCalled(name, outcome string, duration time.Duration)
	ToolCountChanged(count int)
}

// Stats is a read-only summary of the registered tools.
type Stats struct {
	TotalTools       int               `json:"totalTools"`
	ToolNames        []string          `json:"toolNames"`
	ToolDescriptions map[string]string `json:"toolDescriptions"`
}

// ToolConfig is one line of an exported configuration.
type ToolConfig struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver sets the observer notified about calls and registry size.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		r.observer = o
	}
}

// WithDisabled names tools that InitializeDefaultTools and Reload skip.
func WithDisabled(names ...string) Option {
	return func(r *Registry) {
		for _, name := range names {
			r.disabled[name] = true
		}
	}
}

// Registry is the name-keyed set of active tools. At most one tool is
// registered per name; registering a name again replaces the previous tool
// in place. All methods are safe for concurrent use.
type Registry struct {
	catalog  *catalog.Catalog
	logger   zerolog.Logger
	observer Observer
	disabled map[string]bool

	mu      sync.RWMutex
	tools   map[string]tool.Tool
	order   []string
	skipped []tool.Descriptor
}

// New creates an empty registry. The catalog may be nil when tools are only
// registered by hand.
func New(c *catalog.Catalog, logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		catalog:  c,
		logger:   logger.With().Str("component", "tool-registry").Logger(),
		disabled: make(map[string]bool),
		tools:    make(map[string]tool.Tool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InitializeDefaultTools loads the catalog and registers one instance of
// every tool it lists, except disabled ones. Discovery failures are returned
// and nothing is registered.
func (r *Registry) InitializeDefaultTools(ctx context.Context) error {
	if r.catalog == nil {
		return fmt.Errorf("registry has no catalog")
	}

	factories, err := r.catalog.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tool catalog: %w", err)
	}

	tools, skipped, err := r.instantiate(factories)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.skipped = skipped
	r.mu.Unlock()

	r.Load(tools...)

	r.logger.Info().
		Int("registered", len(tools)).
		Int("disabled", len(skipped)).
		Msg("Default tools initialized")
	return nil
}

// Reload rebuilds the catalog and replaces the whole tool set with the new
// one in a single step. On failure the current tools stay registered.
func (r *Registry) Reload(ctx context.Context) error {
	if r.catalog == nil {
		return fmt.Errorf("registry has no catalog")
	}

	factories, err := r.catalog.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("failed to rebuild tool catalog: %w", err)
	}

	tools, skipped, err := r.instantiate(factories)
	if err != nil {
		return err
	}

	next := make(map[string]tool.Tool, len(tools))
	order := make([]string, 0, len(tools))
	for _, t := range tools {
		name := t.Definition().Name
		if _, exists := next[name]; !exists {
			order = append(order, name)
		}
		next[name] = t
	}

	r.mu.Lock()
	r.tools = next
	r.order = order
	r.skipped = skipped
	count := len(order)
	r.mu.Unlock()

	r.registered(count)
	r.logger.Info().Int("count", count).Msg("Tools reloaded")
	return nil
}

// instantiate builds one tool per factory. Disabled tools are returned as
// descriptors only.
func (r *Registry) instantiate(factories []catalog.Factory) ([]tool.Tool, []tool.Descriptor, error) {
	tools := make([]tool.Tool, 0, len(factories))
	var skipped []tool.Descriptor

	for i, factory := range factories {
		t, err := construct(factory)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to instantiate tool %d: %w", i, err)
		}
		def := t.Definition()
		if r.disabled[def.Name] {
			r.logger.Debug().Str("tool", def.Name).Msg("Tool disabled, skipping")
			skipped = append(skipped, def)
			continue
		}
		tools = append(tools, t)
	}
	return tools, skipped, nil
}

func construct(factory catalog.Factory) (t tool.Tool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("factory panicked: %v", rec)
		}
	}()
	if factory == nil {
		return nil, fmt.Errorf("nil factory")
	}
	t = factory()
	if t == nil {
		return nil, fmt.Errorf("factory returned nil tool")
	}
	return t, nil
}

// Register adds t, replacing any tool registered under the same name.
func (r *Registry) Register(t tool.Tool) {
	name := t.Definition().Name

	r.mu.Lock()
	_, replaced := r.tools[name]
	r.put(name, t)
	count := len(r.order)
	r.mu.Unlock()

	r.registered(count)
	r.logger.Debug().Str("tool", name).Bool("replaced", replaced).Msg("Registered tool")
}

// Load registers every tool in order.
func (r *Registry) Load(tools ...tool.Tool) {
	r.mu.Lock()
	for _, t := range tools {
		r.put(t.Definition().Name, t)
	}
	count := len(r.order)
	r.mu.Unlock()

	r.registered(count)
}

func (r *Registry) put(name string, t tool.Tool) {
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Unregister removes the named tool and reports whether it was registered.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	_, exists := r.tools[name]
	if exists {
		delete(r.tools, name)
		for i, n := range r.order {
			if n == name {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	count := len(r.order)
	r.mu.Unlock()

	if !exists {
		return false
	}
	r.registered(count)
	r.logger.Debug().Str("tool", name).Msg("Unregistered tool")
	return true
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (tool.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Definitions returns the descriptor of every registered tool in
// registration order.
func (r *Registry) Definitions() []tool.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]tool.Descriptor, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Stats summarizes the registered tools.
func (r *Registry) Stats() Stats {
	defs := r.Definitions()
	stats := Stats{
		TotalTools:       len(defs),
		ToolNames:        make([]string, 0, len(defs)),
		ToolDescriptions: make(map[string]string, len(defs)),
	}
	for _, def := range defs {
		stats.ToolNames = append(stats.ToolNames, def.Name)
		stats.ToolDescriptions[def.Name] = def.Description
	}
	return stats
}

// ExportConfig lists registered tools as enabled, followed by tools skipped
// because they are disabled.
func (r *Registry) ExportConfig() []ToolConfig {
	defs := r.Definitions()

	r.mu.RLock()
	skipped := append([]tool.Descriptor(nil), r.skipped...)
	r.mu.RUnlock()

	out := make([]ToolConfig, 0, len(defs)+len(skipped))
	for _, def := range defs {
		out = append(out, ToolConfig{Name: def.Name, Description: def.Description, Enabled: true})
	}
	for _, def := range skipped {
		out = append(out, ToolConfig{Name: def.Name, Description: def.Description, Enabled: false})
	}
	return out
}

// Clear removes every tool.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.tools = make(map[string]tool.Tool)
	r.order = nil
	r.mu.Unlock()

	r.registered(0)
	r.logger.Debug().Msg("Cleared all tools")
}

// Call invokes the named tool with raw arguments through tool.Call. An
// unknown name fails with tool.CodeMethodNotFound.
func (r *Registry) Call(ctx context.Context, name string, raw any) (*tool.Result, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "tool.call", attribute.String("tool.name", name))
	defer span.End()

	if zerolog.Ctx(ctx).GetLevel() == zerolog.Disabled {
		ctx = r.logger.WithContext(ctx)
	}

	start := time.Now()

	t, ok := r.Get(name)
	if !ok {
		err := tool.MethodNotFound(name)
		r.finish(span, name, nil, err, time.Since(start))
		return nil, err
	}

	result, err := tool.Call(ctx, t, raw)
	r.finish(span, name, result, err, time.Since(start))
	return result, err
}

func (r *Registry) finish(span trace.Span, name string, result *tool.Result, err error, duration time.Duration) {
	outcome := outcomeOf(result, err)
	span.SetAttributes(attribute.String("tool.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if r.observer != nil {
		r.observer.ToolCalled(name, outcome, duration)
	}
}

func outcomeOf(result *tool.Result, err error) string {
	if err == nil {
		if result != nil && result.IsError {
			return OutcomeToolError
		}
		return OutcomeSuccess
	}
	switch tool.CodeOf(err) {
	case tool.CodeInvalidParams:
		return OutcomeInvalidParams
	case tool.CodeMethodNotFound:
		return OutcomeMethodNotFound
	default:
		return OutcomeInternalError
	}
}

func (r *Registry) registered(count int) {
	if r.observer != nil {
		r.observer.ToolCountChanged(count)
	}
}
