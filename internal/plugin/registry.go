// Package plugin is the order-lifecycle extension point. The registry is
// built and wired explicitly at startup; there is no package-level state.
package plugin

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Hook string

const (
	HookOrderCreate Hook = "onOrderCreate"
	HookOrderCancel Hook = "onOrderCancel"
)

type HookFunc func(ctx context.Context, payload any) error

// Plugin is a named unit of extension logic. Hooks returns the table of
// hook implementations the plugin opts into; absent hooks are skipped.
type Plugin interface {
	Name() string
	Initialize(ctx context.Context) error
	Hooks() map[Hook]HookFunc
}

type Options struct {
	// Critical hooks propagate the first plugin error to the caller after
	// the full dispatch pass. Everything else is best-effort: logged and
	// swallowed so a misbehaving plugin cannot break the request path.
	Critical []Hook

	// HookTimeout bounds a single plugin's hook invocation. Zero disables
	// the bound.
	HookTimeout time.Duration
}

type registration struct {
	plugin      Plugin
	hooks       map[Hook]HookFunc
	initialized bool
}

type Registry struct {
	log         *logrus.Logger
	critical    map[Hook]bool
	hookTimeout time.Duration

	mu       sync.Mutex
	plugins  []*registration
	byName   map[string]*registration
	initDone bool
}

func NewRegistry(log *logrus.Logger, opts Options) *Registry {
	crit := make(map[Hook]bool, len(opts.Critical))
	for _, h := range opts.Critical {
		crit[h] = true
	}
	return &Registry{
		log:         log,
		critical:    crit,
		hookTimeout: opts.HookTimeout,
		byName:      map[string]*registration{},
	}
}

// Register adds a plugin. A duplicate name is logged and ignored, never
// fatal.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.byName[p.Name()]; dup {
		r.log.WithField("plugin", p.Name()).Warn("plugin already registered, ignoring")
		return
	}
	reg := &registration{plugin: p, hooks: p.Hooks()}
	r.byName[p.Name()] = reg
	r.plugins = append(r.plugins, reg)
	r.log.WithField("plugin", p.Name()).Debug("plugin registered")
}

// InitializeAll runs each plugin's Initialize in registration order. A
// failing plugin stays registered but uninitialized; later plugins still
// run. A second call is a logged no-op.
func (r *Registry) InitializeAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initDone {
		r.log.Warn("plugin registry already initialized, skipping")
		return
	}
	r.initDone = true

	for _, reg := range r.plugins {
		if err := reg.plugin.Initialize(ctx); err != nil {
			r.log.WithField("plugin", reg.plugin.Name()).WithError(err).Error("plugin initialization failed")
			continue
		}
		reg.initialized = true
		r.log.WithField("plugin", reg.plugin.Name()).Info("plugin initialized")
	}
}

// TriggerHook invokes hook on every registered plugin that implements it,
// sequentially in registration order, awaiting each before the next. A
// plugin error or panic never stops dispatch to the remaining plugins and
// nothing already applied is rolled back. For critical hooks the first
// error is returned once dispatch completes.
func (r *Registry) TriggerHook(ctx context.Context, hook Hook, payload any) error {
	r.mu.Lock()
	plugins := r.plugins
	r.mu.Unlock()

	var firstErr error
	for _, reg := range plugins {
		fn, ok := reg.hooks[hook]
		if !ok {
			continue
		}
		if err := r.invoke(ctx, fn, payload); err != nil {
			r.log.WithFields(logrus.Fields{
				"plugin": reg.plugin.Name(),
				"hook":   hook,
			}).WithError(err).Error("hook dispatch failed")
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "plugin %s: hook %s", reg.plugin.Name(), hook)
			}
		}
	}

	if r.critical[hook] {
		return firstErr
	}
	return nil
}

func (r *Registry) invoke(ctx context.Context, fn HookFunc, payload any) error {
	if r.hookTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.hookTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- errors.Errorf("hook panic: %v", p)
			}
		}()
		done <- fn(ctx, payload)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// The plugin goroutine is abandoned; dispatch must not stall on it.
		return errors.Wrap(ctx.Err(), "hook timed out")
	}
}

// Initialized reports whether a named plugin completed initialization.
func (r *Registry) Initialized(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byName[name]
	return ok && reg.initialized
}
