package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/birdie-ai/xmlstore/service"
)

func TestShutdown(t *testing.T) {
	handler := service.NewShutdownHandler(time.Minute)
	publisher := newFakeComponent()
	subscription := newFakeComponent()

	handler.Add("publisher", publisher)
	handler.Add("subscription", subscription)

	ctx, cancel := context.WithCancel(context.Background())
	waitDone := make(chan error)
	go func() {
		waitDone <- handler.Wait(ctx)
	}()

	// Not a real guarantee, but catches components shut down before cancellation.
	select {
	case <-publisher.calls:
		t.Fatal("publisher shut down before cancellation")
	case <-subscription.calls:
		t.Fatal("subscription shut down before cancellation")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	// Both calls are received before any answer, so shutdown is concurrent.
	publisherCall := <-publisher.calls
	subscriptionCall := <-subscription.calls

	if _, ok := publisherCall.ctx.Deadline(); !ok {
		t.Fatal("shutdown context has no deadline")
	}
	if err := publisherCall.ctx.Err(); err != nil {
		t.Fatalf("shutdown context is done: %v", err)
	}

	assertWaiting := func() {
		t.Helper()
		select {
		case <-waitDone:
			t.Fatal("handler.Wait() returned before all components shut down")
		case <-time.After(50 * time.Millisecond):
		}
	}

	assertWaiting()
	publisherCall.response <- nil

	assertWaiting()
	subscriptionCall.response <- nil

	if err := <-waitDone; err != nil {
		t.Fatal(err)
	}
}

func TestShutdownErrors(t *testing.T) {
	errBucket := errors.New("bucket close failed")
	errEvents := errors.New("events shutdown failed")

	handler := service.NewShutdownHandler(time.Second)
	handler.Add("bucket", service.Closer(closerFunc(func() error { return errBucket })))
	handler.Add("events", service.ShutdownFunc(func(context.Context) error { return errEvents }))
	handler.Add("existdb", service.Closer(closerFunc(func() error { return nil })))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := handler.Wait(ctx)
	if !errors.Is(err, errBucket) {
		t.Errorf("got %v; want %v", err, errBucket)
	}
	if !errors.Is(err, errEvents) {
		t.Errorf("got %v; want %v", err, errEvents)
	}
}

func TestShutdownGracePeriod(t *testing.T) {
	handler := service.NewShutdownHandler(10 * time.Millisecond)
	handler.Add("slow", service.ShutdownFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := handler.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v; want %v", err, context.DeadlineExceeded)
	}
}

func TestShutdownNoComponents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := service.NewShutdownHandler(time.Second).Wait(ctx); err != nil {
		t.Fatal(err)
	}
}

type (
	shutdownCall struct {
		ctx      context.Context
		response chan error
	}
	fakeComponent struct {
		calls chan shutdownCall
	}
	closerFunc func() error
)

func newFakeComponent() *fakeComponent {
	return &fakeComponent{calls: make(chan shutdownCall)}
}

func (f *fakeComponent) Shutdown(ctx context.Context) error {
	call := shutdownCall{ctx: ctx, response: make(chan error)}
	f.calls <- call
	return <-call.response
}

func (f closerFunc) Close() error {
	return f()
}
