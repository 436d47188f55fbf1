package infrastructure_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/dispatch/internal/config"
	"github.com/JaimeStill/dispatch/internal/infrastructure"
	"github.com/JaimeStill/dispatch/internal/pipeline"
	"github.com/JaimeStill/dispatch/internal/records"
	"github.com/JaimeStill/dispatch/pkg/pagination"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, store string) *config.Config {
	t.Helper()

	cfg := &config.Config{}
	cfg.Pipeline = pipeline.Config{
		Store:      store,
		SQLitePath: filepath.Join(t.TempDir(), "dispatch.db"),
	}
	if err := cfg.Pipeline.Finalize(nil); err != nil {
		t.Fatalf("pipeline finalize: %v", err)
	}
	cfg.API.Pagination = pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}
	return cfg
}

func TestLifecycle(t *testing.T) {
	tests := []struct {
		store        string
		wantDatabase bool
	}{
		{pipeline.StoreMemory, false},
		{pipeline.StoreSQLite, true},
	}

	for _, tt := range tests {
		t.Run(tt.store, func(t *testing.T) {
			cfg := testConfig(t, tt.store)

			infra, err := infrastructure.NewWithLogger(cfg, discard())
			if err != nil {
				t.Fatalf("NewWithLogger() error = %v", err)
			}

			if (infra.Database != nil) != tt.wantDatabase {
				t.Errorf("database present = %v, want %v", infra.Database != nil, tt.wantDatabase)
			}
			if infra.Lexicon == nil || infra.Records == nil {
				t.Fatal("lexicon and records must be initialized")
			}
			if infra.Storage != nil || infra.Archive != nil {
				t.Error("archive systems should be nil when archiving is off")
			}

			if err := infra.Start(); err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			infra.Lifecycle.WaitForStartup()
			if !infra.Lifecycle.Ready() {
				t.Fatal("lifecycle should be ready after startup")
			}

			ctx := context.Background()
			rec, err := infra.Pipeline(cfg.Pipeline).Process(ctx, pipeline.Input{
				Source:  records.SourceEmail,
				Payload: "Subject: Invoice 4411\n\nPlease find the invoice attached. Total due: $1,250.00",
			})
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}

			got, err := infra.Records.Get(ctx, rec.Request.ID)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if !got.Finalized() {
				t.Error("processed record should carry an action result")
			}

			if err := infra.Lifecycle.Shutdown(5 * time.Second); err != nil {
				t.Fatalf("Shutdown() error = %v", err)
			}
		})
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "missing lexicon file",
			mutate:  func(c *config.Config) { c.Pipeline.LexiconFile = "/nonexistent/lexicon.toml" },
			wantErr: "lexicon init failed",
		},
		{
			name:    "unknown store",
			mutate:  func(c *config.Config) { c.Pipeline.Store = "redis" },
			wantErr: "record store init failed",
		},
		{
			name: "invalid storage connection",
			mutate: func(c *config.Config) {
				c.Pipeline.Archive = true
				c.Storage.ContainerName = "dispatch"
				c.Storage.ConnectionString = "not-a-connection-string"
			},
			wantErr: "storage init failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, pipeline.StoreMemory)
			tt.mutate(cfg)

			_, err := infrastructure.NewWithLogger(cfg, discard())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}
