package main

import "testing"

func TestPubsubOptions(t *testing.T) {
	t.Setenv("PUBSUB_EMULATOR_HOST", "")
	if opts := pubsubOptions(); opts != nil {
		t.Fatalf("got %d options without an emulator; want none", len(opts))
	}

	t.Setenv("PUBSUB_EMULATOR_HOST", "localhost:8085")
	if opts := pubsubOptions(); len(opts) != 3 {
		t.Fatalf("got %d options with an emulator; want endpoint, no auth and insecure transport", len(opts))
	}
}
