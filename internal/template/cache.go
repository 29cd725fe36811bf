// Package template caches compiled stylesheets.
//
// A Cache hands out Handles keyed by stylesheet content. Handles missing
// from the cache are scheduled into a Batch and compiled when the batch
// executes; identical stylesheets requested by several definitions compile
// once. The cache holds handles weakly: once no definition references a
// handle it is dropped and a later request compiles it again.
package template

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
	"weak"

	"docgen/internal/definition"
	"docgen/internal/logging"
	"docgen/internal/telemetry"
	"docgen/internal/transform"
)

type Cache struct {
	engine transform.Engine

	mu      sync.Mutex
	entries map[string]weak.Pointer[Handle]
}

func NewCache(engine transform.Engine) *Cache {
	return &Cache{engine: engine, entries: map[string]weak.Pointer[Handle]{}}
}

// GetOrSchedule returns the live handle for src, the handle already
// scheduled for it in b, or a new pending handle scheduled in b. The
// handle is usable once b has executed. A source that cannot be parsed is a
// *definition.ConfigurationError and schedules nothing. Sources are parsed
// outside the cache lock.
func (c *Cache) GetOrSchedule(b *Batch, name string, src Source) (*Handle, error) {
	key := src.CacheKey()

	c.mu.Lock()
	h := c.lookup(b, key)
	c.mu.Unlock()
	if h != nil {
		return h, nil
	}

	doc, err := src.Parse()
	if err != nil {
		return nil, &definition.ConfigurationError{Subject: name, Msg: "template cannot be parsed", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another caller may have scheduled the same key while we parsed.
	if h := c.lookup(b, key); h != nil {
		return h, nil
	}
	h = &Handle{}
	b.add(compileJob{cache: c, key: key, name: name, doc: doc, handle: h})
	telemetry.CacheLookups.WithLabelValues("miss").Inc()
	return h, nil
}

// lookup finds a live cached or in-flight handle. c.mu must be held.
func (c *Cache) lookup(b *Batch, key string) *Handle {
	if wp, ok := c.entries[key]; ok {
		if h := wp.Value(); h != nil {
			telemetry.CacheLookups.WithLabelValues("hit").Inc()
			return h
		}
		delete(c.entries, key)
	}
	if h := b.inflight(key); h != nil {
		telemetry.CacheLookups.WithLabelValues("inflight").Inc()
		return h
	}
	return nil
}

// Len is the number of live cached handles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, wp := range c.entries {
		if wp.Value() == nil {
			delete(c.entries, key)
			continue
		}
		n++
	}
	return n
}

func (c *Cache) register(key string, h *Handle) {
	wp := weak.Make(h)
	c.mu.Lock()
	c.entries[key] = wp
	c.mu.Unlock()
	runtime.AddCleanup(h, c.evict, entry{key: key, wp: wp})
}

type entry struct {
	key string
	wp  weak.Pointer[Handle]
}

func (c *Cache) evict(e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[e.key] == e.wp {
		delete(c.entries, e.key)
	}
}

// compile resolves the job's handle and registers it, whatever the outcome.
func (c *Cache) compile(ctx context.Context, j compileJob) {
	start := time.Now()
	fac, diags, err := c.safeCompile(ctx, j)
	telemetry.CompileSeconds.Observe(time.Since(start).Seconds())

	if err == nil && fac == nil {
		err = errors.New("engine returned no compiled template")
	}
	if err != nil {
		msg := transform.Join(diags)
		if msg == "" {
			msg = err.Error()
		}
		j.handle.fail(j.name + ": " + msg)
		telemetry.Compiles.WithLabelValues("failed").Inc()
		logging.L().Error("template compile failed", "name", j.name, "err", err, "diagnostics", len(diags))
	} else {
		j.handle.ready(fac)
		telemetry.Compiles.WithLabelValues("ok").Inc()
		for _, d := range diags {
			logging.L().Warn("template compile diagnostic", "name", j.name, "diagnostic", d.String())
		}
		logging.L().Debug("template compiled", "name", j.name, "elapsed", time.Since(start))
	}
	c.register(j.key, j.handle)
}

func (c *Cache) safeCompile(ctx context.Context, j compileJob) (fac transform.Factory, diags []transform.Diagnostic, err error) {
	defer func() {
		if r := recover(); r != nil {
			fac, err = nil, fmt.Errorf("engine panic: %v", r)
		}
	}()
	return c.engine.Compile(ctx, j.name, j.doc)
}
