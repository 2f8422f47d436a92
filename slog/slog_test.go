package slog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/birdie-ai/xmlstore/slog"
)

const (
	service     = "XMLSTORE_TEST"
	logLevelEnv = service + "_LOG_LEVEL"
	logFmtEnv   = service + "_LOG_FMT"
)

func ExampleNewHandler() {
	h, err := slog.NewHandler(os.Stdout, slog.Config{Level: slog.LevelWarn, Format: slog.FormatJSON})
	if err != nil {
		panic(err)
	}
	logger := slog.New(h)
	logger.Info("omit", "a", 666)
	logger.Warn("yeah", "b", "yeah")
}

func TestLoadConfigDefault(t *testing.T) {
	config, err := slog.LoadConfig("DEFAULT")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.Level != slog.DefaultLevel {
		t.Errorf("got %v, want default level %v", config.Level, slog.DefaultLevel)
	}

	if config.Format != slog.DefaultFormat {
		t.Errorf("got %v, want default fmt %v", config.Format, slog.DefaultFormat)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(logLevelEnv, "DEBUG")
	t.Setenv(logFmtEnv, "json")

	config, err := slog.LoadConfig(service)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.Level != slog.LevelDebug {
		t.Errorf("got %v, want level %v", config.Level, slog.LevelDebug)
	}

	if config.Format != slog.FormatJSON {
		t.Errorf("got %v, want fmt %v", config.Format, slog.FormatJSON)
	}
}

func TestLoadConfigErr(t *testing.T) {
	t.Setenv(logLevelEnv, "debug")
	t.Setenv(logFmtEnv, "gcloud")

	config, err := slog.LoadConfig(service)
	if err == nil {
		t.Fatalf("expected error, got config: %v", config)
	}

	t.Setenv(logLevelEnv, "wrong")
	t.Setenv(logFmtEnv, "text")

	config, err = slog.LoadConfig(service)
	if err == nil {
		t.Fatalf("expected error, got config: %v", config)
	}
}

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer
	h, err := slog.NewHandler(&buf, slog.Config{Level: slog.LevelInfo, Format: slog.FormatJSON})
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(h).With("collection", "/db/books")
	logger.Debug("omitted")
	logger.Info("query executed", "records", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines; want 1:\n%s", len(lines), buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatal(err)
	}
	if record["msg"] != "query executed" || record["collection"] != "/db/books" || record["records"] != float64(2) {
		t.Fatalf("unexpected record: %v", record)
	}

	if _, err := slog.NewHandler(&buf, slog.Config{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestContextIntegration(t *testing.T) {
	want := &slog.Logger{}
	ctx := slog.NewContext(context.Background(), want)
	got := slog.FromCtx(ctx)

	if want != got {
		t.Fatalf("got %+v != want %+v", got, want)
	}

	if slog.FromCtx(context.Background()) == nil {
		t.Fatal("expected default logger")
	}
}
