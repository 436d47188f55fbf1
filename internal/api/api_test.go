package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"

	"github.com/JaimeStill/dispatch/internal/api"
	"github.com/JaimeStill/dispatch/internal/config"
	"github.com/JaimeStill/dispatch/internal/infrastructure"
	"github.com/JaimeStill/dispatch/internal/pipeline"
	"github.com/JaimeStill/dispatch/internal/records"
	"github.com/JaimeStill/dispatch/pkg/middleware"
	"github.com/JaimeStill/dispatch/pkg/module"
	"github.com/JaimeStill/dispatch/pkg/pagination"
)

const fraudEmail = "From: Security Desk <security@bank.example>\n" +
	"Subject: URGENT: suspicious activity on account\n" +
	"\n" +
	"We detected fraud and suspicious activity on account 4471.\n" +
	"Several unauthorized transfers were made overnight.\n"

const orderJSON = `{"order_id": "ORD-19", "customer_id": "C-7", "items": []}`

func testConfig() *config.Config {
	return &config.Config{
		API: config.APIConfig{
			BasePath:      "/api",
			MaxUploadSize: "1MB",
			Pagination: pagination.Config{
				DefaultPageSize: 20,
				MaxPageSize:     100,
			},
		},
		Pipeline: pipeline.Config{
			Store:   pipeline.StoreMemory,
			Workers: 2,
		},
		LogLevel: "info",
	}
}

func newRouter(t *testing.T, verifier middleware.TokenVerifier) *module.Router {
	t.Helper()

	cfg := testConfig()
	infra, err := infrastructure.NewWithLogger(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("infrastructure: %v", err)
	}
	t.Cleanup(func() { infra.Close() })

	router := module.NewRouter()
	router.Mount(api.NewModuleWithVerifier(cfg, infra, verifier))
	return router
}

func serve(router http.Handler, method, target, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestProcess(t *testing.T) {
	router := newRouter(t, nil)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	mw.WriteField("email_data", fraudEmail)
	mw.Close()

	tests := []struct {
		name        string
		contentType string
		body        string
		wantFormat  records.Format
		wantIntent  records.Intent
		wantAction  records.ActionType
	}{
		{
			name:        "email body",
			contentType: "text/plain",
			body:        fraudEmail,
			wantFormat:  records.FormatEmail,
			wantIntent:  records.IntentFraudRisk,
			wantAction:  records.ActionCreateRiskAlert,
		},
		{
			name:        "email form field",
			contentType: mw.FormDataContentType(),
			body:        form.String(),
			wantFormat:  records.FormatEmail,
			wantIntent:  records.IntentFraudRisk,
			wantAction:  records.ActionCreateRiskAlert,
		},
		{
			name:        "json body",
			contentType: "application/json",
			body:        orderJSON,
			wantFormat:  records.FormatJSON,
			wantIntent:  records.IntentOther,
			wantAction:  records.ActionLogOnly,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, "POST", "/api/process", tt.contentType, strings.NewReader(tt.body))
			if rec.Code != http.StatusCreated {
				t.Fatalf("status: got %d, want 201: %s", rec.Code, rec.Body.String())
			}

			got := decode[records.ProcessingRecord](t, rec)
			if got.Classification == nil || got.ActionResult == nil {
				t.Fatalf("record not finalized: %+v", got)
			}
			if got.Classification.Format != tt.wantFormat {
				t.Errorf("format: got %s, want %s", got.Classification.Format, tt.wantFormat)
			}
			if got.Classification.Intent != tt.wantIntent {
				t.Errorf("intent: got %s, want %s", got.Classification.Intent, tt.wantIntent)
			}
			if got.ActionResult.Type != tt.wantAction {
				t.Errorf("action: got %s, want %s", got.ActionResult.Type, tt.wantAction)
			}
			if got.Status != records.StatusCompleted {
				t.Errorf("status: got %s, want %s", got.Status, records.StatusCompleted)
			}
		})
	}
}

func TestProcessRejectsBadSubmissions(t *testing.T) {
	router := newRouter(t, nil)

	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"unsupported media", "image/png", "\x89PNG", http.StatusUnsupportedMediaType},
		{"missing content type", "", "hello", http.StatusUnsupportedMediaType},
		{"empty form", "application/x-www-form-urlencoded", "", http.StatusBadRequest},
		{"oversized body", "text/plain", strings.Repeat("a", 2<<20), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, "POST", "/api/process", tt.contentType, strings.NewReader(tt.body))
			if rec.Code != tt.want {
				t.Errorf("status: got %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if body := decode[map[string]string](t, rec); body["error"] == "" {
				t.Error("error body missing")
			}
		})
	}
}

func TestBatchAndRecords(t *testing.T) {
	router := newRouter(t, nil)

	inputs := []pipeline.Input{
		{Source: records.SourceEmail, Payload: fraudEmail},
		{Source: records.SourceJSON, Payload: orderJSON},
		{Source: records.SourceJSON, Payload: ""},
	}
	body, _ := json.Marshal(inputs)

	rec := serve(router, "POST", "/api/process/batch", "application/json", bytes.NewReader(body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("batch status: got %d: %s", rec.Code, rec.Body.String())
	}
	batch := decode[[]records.ProcessingRecord](t, rec)
	if len(batch) != len(inputs) {
		t.Fatalf("batch size: got %d, want %d", len(batch), len(inputs))
	}
	for i, r := range batch {
		if r.ActionResult == nil {
			t.Errorf("record %d has no action result", i)
		}
	}

	t.Run("list", func(t *testing.T) {
		rec := serve(router, "GET", "/api/records?page_size=2", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status: got %d", rec.Code)
		}
		page := decode[pagination.PageResult[records.Summary]](t, rec)
		if page.Total != 3 || len(page.Data) != 2 || page.TotalPages != 2 {
			t.Errorf("page: got total=%d len=%d pages=%d", page.Total, len(page.Data), page.TotalPages)
		}
	})

	t.Run("list filtered", func(t *testing.T) {
		rec := serve(router, "GET", "/api/records?intent=FRAUD_RISK", "", nil)
		page := decode[pagination.PageResult[records.Summary]](t, rec)
		if page.Total != 1 || page.Data[0].ID != batch[0].Request.ID {
			t.Errorf("filtered page: %+v", page)
		}
	})

	t.Run("find", func(t *testing.T) {
		id := batch[1].Request.ID
		rec := serve(router, "GET", "/api/records/"+id.String(), "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status: got %d", rec.Code)
		}
		if got := decode[records.ProcessingRecord](t, rec); got.Request.ID != id {
			t.Errorf("id: got %s, want %s", got.Request.ID, id)
		}
	})

	t.Run("trace", func(t *testing.T) {
		rec := serve(router, "GET", "/api/records/"+batch[0].Request.ID.String()+"/trace", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status: got %d", rec.Code)
		}
		trace := decode[[]records.TraceEntry](t, rec)
		if len(trace) == 0 || trace[0].Action != pipeline.EventReceived {
			t.Fatalf("trace: %+v", trace)
		}
		for i, te := range trace {
			if te.Seq != i+1 {
				t.Errorf("seq %d: got %d", i, te.Seq)
			}
		}
	})

	t.Run("lookup errors", func(t *testing.T) {
		cases := []struct {
			target string
			want   int
		}{
			{"/api/records/not-a-uuid", http.StatusBadRequest},
			{"/api/records/" + uuid.NewString(), http.StatusNotFound},
			{"/api/records/" + uuid.NewString() + "/trace", http.StatusNotFound},
			{"/api/records/" + batch[0].Request.ID.String() + "/archive", http.StatusNotFound},
		}
		for _, c := range cases {
			if rec := serve(router, "GET", c.target, "", nil); rec.Code != c.want {
				t.Errorf("%s: got %d, want %d", c.target, rec.Code, c.want)
			}
		}
	})
}

func TestBatchRejectsInvalidSource(t *testing.T) {
	router := newRouter(t, nil)

	rec := serve(router, "POST", "/api/process/batch", "application/json",
		strings.NewReader(`[{"source": "fax", "payload": "x"}]`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, raw string) (*oidc.IDToken, error) {
	if raw != "let-me-in" {
		return nil, errors.New("bad token")
	}
	return &oidc.IDToken{Subject: "triage-bot"}, nil
}

func TestAuth(t *testing.T) {
	router := newRouter(t, stubVerifier{})

	rec := serve(router, "GET", "/api/records", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without token: got %d, want 401", rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/records", nil)
	req.Header.Set("Authorization", "Bearer let-me-in")
	ok := httptest.NewRecorder()
	router.ServeHTTP(ok, req)
	if ok.Code != http.StatusOK {
		t.Errorf("with token: got %d, want 200", ok.Code)
	}
}
