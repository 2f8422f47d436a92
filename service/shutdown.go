// Package service provides the process plumbing shared by programs using the store:
// graceful shutdown of components and the build info metric.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/birdie-ai/xmlstore/slog"
	"github.com/sourcegraph/conc/pool"
)

// Shutdowner is a component that can be shut down, like an event publisher or subscription.
type Shutdowner interface {
	Shutdown(context.Context) error
}

// ShutdownFunc adapts a function to a [Shutdowner].
type ShutdownFunc func(context.Context) error

// Shutdown calls f(ctx).
func (f ShutdownFunc) Shutdown(ctx context.Context) error {
	return f(ctx)
}

// Closer adapts components released with a Close method, like buckets or eXist-db clients.
func Closer(c interface{ Close() error }) Shutdowner {
	return ShutdownFunc(func(context.Context) error {
		return c.Close()
	})
}

// ShutdownHandler shuts down a set of named components once its context is cancelled.
type ShutdownHandler struct {
	gracePeriod time.Duration
	components  []component
}

type component struct {
	name string
	s    Shutdowner
}

// NewShutdownHandler creates a [ShutdownHandler]. Each component gets gracePeriod to shut down.
func NewShutdownHandler(gracePeriod time.Duration) *ShutdownHandler {
	return &ShutdownHandler{gracePeriod: gracePeriod}
}

// Add registers the component with the given name.
// Must be called before [ShutdownHandler.Wait].
func (h *ShutdownHandler) Add(name string, s Shutdowner) {
	h.components = append(h.components, component{name: name, s: s})
}

// Wait blocks until ctx is cancelled and then shuts down all components concurrently.
// It returns after every component is done, with the errors of all components that failed.
func (h *ShutdownHandler) Wait(ctx context.Context) error {
	<-ctx.Done()

	log := slog.FromCtx(ctx)
	log.Info("shutting down", "components", len(h.components), "grace_period", h.gracePeriod)

	p := pool.NewWithResults[error]()
	for _, c := range h.components {
		p.Go(func() error {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.gracePeriod)
			defer cancel()

			start := time.Now()
			if err := c.s.Shutdown(sctx); err != nil {
				log.Error("component shutdown failed", "component", c.name, "error", err)
				return fmt.Errorf("shutting down %s: %w", c.name, err)
			}
			log.Debug("component shut down", "component", c.name, "elapsed", time.Since(start))
			return nil
		})
	}
	return errors.Join(p.Wait()...)
}
