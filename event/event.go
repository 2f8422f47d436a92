// Package event provides publish/subscribe of notifications about stored XML documents.
//
// Events of type T travel as JSON on an [Envelope] that carries the event name, so subscribers
// can discard events that don't belong to them. Topics and subscriptions are opened with
// gocloud.dev/pubsub URLs, like "mem://documents" or "gcppubsub://projects/p/topics/t".
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/birdie-ai/xmlstore/slog"
	"github.com/birdie-ai/xmlstore/tracing"
	"gocloud.dev/pubsub"

	// Supported topic and subscription URL schemes.
	_ "gocloud.dev/pubsub/gcppubsub"
	_ "gocloud.dev/pubsub/mempubsub"
)

type (
	// Publisher represents a publisher of events of type T.
	Publisher[T any] struct {
		name  string
		topic *pubsub.Topic
	}

	// Envelope is the message body of all published events.
	Envelope[T any] struct {
		TraceID string `json:"trace_id,omitempty"`
		Name    string `json:"name"`
		Event   T      `json:"event"`
	}

	// Subscription delivers events of type T with a given name.
	Subscription[T any] struct {
		name           string
		sub            *pubsub.Subscription
		maxConcurrency int
	}

	// Handler handles an event, a non-nil error means the event was not processed.
	Handler[T any] func(context.Context, T) error
)

// ErrInvalidMaxConcurrency is returned by [NewSubscription] for non positive concurrency.
var ErrInvalidMaxConcurrency = errors.New("max concurrency must be > 0")

// NewPublisher creates a new event publisher for the given event name and topic.
func NewPublisher[T any](name string, t *pubsub.Topic) *Publisher[T] {
	return &Publisher[T]{
		name:  name,
		topic: t,
	}
}

// OpenPublisher opens the topic at the given URL and creates a publisher for it.
// Call [Publisher.Shutdown] to release the topic.
func OpenPublisher[T any](ctx context.Context, name, url string) (*Publisher[T], error) {
	topic, err := pubsub.OpenTopic(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("opening topic %q: %w", url, err)
	}
	return NewPublisher[T](name, topic), nil
}

// Publish will publish the given event.
// The trace ID of ctx (see [tracing.CtxGetTraceID]) is sent on the envelope.
func (p *Publisher[T]) Publish(ctx context.Context, event T) error {
	traceID, _ := tracing.CtxGetTraceID(ctx)
	body, err := json.Marshal(Envelope[T]{TraceID: traceID, Name: p.name, Event: event})
	if err != nil {
		return fmt.Errorf("encoding event %q: %w", p.name, err)
	}

	start := time.Now()
	err = p.topic.Send(ctx, &pubsub.Message{Body: body})
	samplePublish(p.name, time.Since(start), len(body), err)
	return err
}

// Shutdown flushes pending events and shuts down the topic.
func (p *Publisher[T]) Shutdown(ctx context.Context) error {
	return p.topic.Shutdown(ctx)
}

// NewSubscription creates a subscription for events with the given name. Each event is handled
// on its own goroutine, respecting the given maxConcurrency (see [Subscription.Serve]).
func NewSubscription[T any](name, url string, maxConcurrency int) (*Subscription[T], error) {
	if maxConcurrency <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxConcurrency, maxConcurrency)
	}
	// The subscription must outlive any request, so it uses the background context.
	sub, err := pubsub.OpenSubscription(context.Background(), url)
	if err != nil {
		return nil, fmt.Errorf("opening subscription %q: %w", url, err)
	}
	return &Subscription[T]{
		name:           name,
		sub:            sub,
		maxConcurrency: maxConcurrency,
	}, nil
}

// Serve calls handler for each received event until [Subscription.Shutdown] is called or ctx is cancelled.
// The handler context carries the trace ID of the event, if any.
// The event is acked if the handler returns nil and nacked if it fails or panics.
// Events with other names or that can't be decoded are logged and acked, they would never be handled.
// Serve waits for running handlers before returning.
func (s *Subscription[T]) Serve(ctx context.Context, handler Handler[T]) error {
	log := slog.FromCtx(ctx).With("event", s.name)
	semaphore := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		semaphore <- struct{}{}
		msg, err := s.sub.Receive(ctx)
		if err != nil {
			// Errors from Receive indicate that Receive will no longer succeed.
			return fmt.Errorf("receiving from subscription, stopping: %w", err)
		}

		wg.Add(1)
		go func() {
			defer func() {
				<-semaphore
				wg.Done()
			}()
			s.handle(ctx, log, msg, handler)
		}()
	}
}

// Shutdown will shutdown the subscription, stopping any calls to [Subscription.Serve].
// The subscription should not be used after this method is called.
func (s *Subscription[T]) Shutdown(ctx context.Context) error {
	return s.sub.Shutdown(ctx)
}

func (s *Subscription[T]) handle(ctx context.Context, log *slog.Logger, msg *pubsub.Message, handler Handler[T]) {
	var envelope Envelope[T]
	if err := json.Unmarshal(msg.Body, &envelope); err != nil {
		log.Error("discarding malformed event", "error", err, "body", string(msg.Body))
		sampleDiscarded(s.name, reasonMalformed)
		msg.Ack()
		return
	}
	if envelope.Name != s.name {
		log.Warn("discarding event with unexpected name", "got", envelope.Name)
		sampleDiscarded(s.name, reasonForeign)
		msg.Ack()
		return
	}

	ctx = slog.NewContext(ctx, log)
	if envelope.TraceID != "" {
		ctx = tracing.CtxWithTraceID(ctx, envelope.TraceID)
		log = slog.FromCtx(ctx)
	}

	start := time.Now()
	err := safeHandle(ctx, handler, envelope.Event)
	sampleProcess(s.name, time.Since(start), err)
	if err != nil {
		log.Error("handling event", "error", err)
		msg.Nack()
		return
	}
	msg.Ack()
}

func safeHandle[T any](ctx context.Context, handler Handler[T], event T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, event)
}
