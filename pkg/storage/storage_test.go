package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/JaimeStill/dispatch/pkg/storage"
)

const azuriteConnString = "DefaultEndpointsProtocol=http;AccountName=dispatchstore;AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;BlobEndpoint=http://127.0.0.1:10000/dispatchstore;"

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFinalizeDefaults(t *testing.T) {
	cfg := storage.Config{ConnectionString: "test-connection"}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	if cfg.ContainerName != "dispatch" {
		t.Errorf("container_name: got %s, want dispatch", cfg.ContainerName)
	}
	if cfg.Prefix != "records" {
		t.Errorf("prefix: got %s, want records", cfg.Prefix)
	}
	if cfg.UsesCredential() {
		t.Error("connection string config should not use the credential chain")
	}
}

func TestFinalizeEnvOverrides(t *testing.T) {
	t.Setenv("TEST_CONTAINER", "archive")
	t.Setenv("TEST_ACCOUNT_URL", "https://acct.blob.core.windows.net/")
	t.Setenv("TEST_PREFIX", "triage")

	env := &storage.Env{
		ContainerName: "TEST_CONTAINER",
		AccountURL:    "TEST_ACCOUNT_URL",
		Prefix:        "TEST_PREFIX",
	}

	cfg := storage.Config{}
	if err := cfg.Finalize(env); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	if cfg.ContainerName != "archive" {
		t.Errorf("container_name: got %s, want archive", cfg.ContainerName)
	}
	if cfg.AccountURL != "https://acct.blob.core.windows.net/" {
		t.Errorf("account_url: got %s", cfg.AccountURL)
	}
	if cfg.Prefix != "triage" {
		t.Errorf("prefix: got %s, want triage", cfg.Prefix)
	}
	if !cfg.UsesCredential() {
		t.Error("account url config should use the credential chain")
	}
}

func TestFinalizeValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     storage.Config
		wantErr string
	}{
		{
			name:    "no endpoint",
			cfg:     storage.Config{ContainerName: "docs"},
			wantErr: "connection_string or account_url required",
		},
		{
			name:    "traversal prefix",
			cfg:     storage.Config{ConnectionString: "conn", Prefix: "../x"},
			wantErr: "invalid path segment",
		},
		{
			name: "connection string only",
			cfg:  storage.Config{ConnectionString: "conn"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Finalize(nil)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := storage.Config{
		ContainerName:    "dispatch",
		ConnectionString: "base-conn",
	}

	overlay := storage.Config{ConnectionString: "overlay-conn", Prefix: "p"}
	base.Merge(&overlay)

	if base.ContainerName != "dispatch" {
		t.Errorf("container_name should remain dispatch, got %s", base.ContainerName)
	}
	if base.ConnectionString != "overlay-conn" || base.Prefix != "p" {
		t.Errorf("overlay not applied: %+v", base)
	}
}

func TestNew(t *testing.T) {
	sys, err := storage.New(&storage.Config{
		ContainerName:    "dispatch",
		ConnectionString: azuriteConnString,
	}, discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if sys == nil {
		t.Fatal("New() returned nil system")
	}

	_, err = storage.New(&storage.Config{
		ContainerName:    "dispatch",
		ConnectionString: "not-a-connection-string",
	}, discard())
	if err == nil {
		t.Fatal("expected error for invalid connection string, got nil")
	}
}

func TestKeyValidation(t *testing.T) {
	sys, err := storage.New(&storage.Config{
		ContainerName:    "dispatch",
		ConnectionString: azuriteConnString,
	}, discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"empty key", "", storage.ErrEmptyKey},
		{"path traversal", "records/../secrets/key", storage.ErrInvalidKey},
		{"double dot in middle", "records/..hidden/x.json", storage.ErrInvalidKey},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sys.Upload(ctx, tt.key, bytes.NewReader(nil), &storage.UploadOptions{ContentType: "application/json"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Upload() error = %v, want %v", err, tt.wantErr)
			}

			_, err = sys.Download(ctx, tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Download() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{storage.ErrEmptyKey, http.StatusBadRequest},
		{storage.ErrInvalidKey, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := storage.MapHTTPStatus(tt.err); got != tt.want {
			t.Errorf("MapHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
