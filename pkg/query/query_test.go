package query_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/JaimeStill/dispatch/pkg/query"
)

func projection() *query.ProjectionMap {
	return query.NewProjectionMap("requests", "r").
		Project("id", "id").
		Project("status", "status").
		Project("created_at", "created_at").
		Filter("payload", "payload")
}

func ptr[T any](v T) *T { return &v }

func TestProjectionMap(t *testing.T) {
	p := projection()

	if got := p.From(); got != "requests r" {
		t.Errorf("From() = %q", got)
	}
	if got := p.Columns(); got != "r.id, r.status, r.created_at" {
		t.Errorf("Columns() = %q, filter columns must not be selected", got)
	}
	if col, ok := p.Column("payload"); !ok || col != "r.payload" {
		t.Errorf("Column(payload) = %q, %v", col, ok)
	}
	if _, ok := p.Column("secret"); ok {
		t.Error("unmapped column should not resolve")
	}
}

func TestParseSortFields(t *testing.T) {
	tests := []struct {
		input string
		want  []query.SortField
	}{
		{"", nil},
		{"status", []query.SortField{{Field: "status"}}},
		{"status, -created_at,", []query.SortField{
			{Field: "status"},
			{Field: "created_at", Descending: true},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, query.ParseSortFields(tt.input)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuilder(t *testing.T) {
	defaultSort := query.SortField{Field: "created_at", Descending: true}

	tests := []struct {
		name      string
		build     func(*query.Builder) *query.Builder
		wantCount string
		wantPage  string
		wantArgs  []any
	}{
		{
			name:      "no conditions",
			build:     func(b *query.Builder) *query.Builder { return b },
			wantCount: "SELECT COUNT(*) FROM requests r",
			wantPage:  "SELECT r.id, r.status, r.created_at FROM requests r ORDER BY r.created_at DESC LIMIT $1 OFFSET $2",
			wantArgs:  []any{10, 10},
		},
		{
			name: "equals and contains",
			build: func(b *query.Builder) *query.Builder {
				return b.WhereEquals("status", "COMPLETED").WhereContains("payload", ptr("Invoice"))
			},
			wantCount: "SELECT COUNT(*) FROM requests r WHERE r.status = $1 AND LOWER(r.payload) LIKE $2",
			wantPage:  "SELECT r.id, r.status, r.created_at FROM requests r WHERE r.status = $1 AND LOWER(r.payload) LIKE $2 ORDER BY r.created_at DESC LIMIT $3 OFFSET $4",
			wantArgs:  []any{"COMPLETED", "%invoice%", 10, 10},
		},
		{
			name: "nil and unmapped conditions skipped",
			build: func(b *query.Builder) *query.Builder {
				var status *string
				return b.WhereEquals("status", status).WhereEquals("secret", "x").WhereContains("payload", ptr(""))
			},
			wantCount: "SELECT COUNT(*) FROM requests r",
			wantPage:  "SELECT r.id, r.status, r.created_at FROM requests r ORDER BY r.created_at DESC LIMIT $1 OFFSET $2",
			wantArgs:  []any{10, 10},
		},
		{
			name: "explicit sort drops unmapped fields",
			build: func(b *query.Builder) *query.Builder {
				return b.OrderByFields(query.ParseSortFields("status,-secret,id"))
			},
			wantCount: "SELECT COUNT(*) FROM requests r",
			wantPage:  "SELECT r.id, r.status, r.created_at FROM requests r ORDER BY r.status ASC, r.id ASC LIMIT $1 OFFSET $2",
			wantArgs:  []any{10, 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.build(query.NewBuilder(projection(), defaultSort))

			count, _ := b.BuildCount()
			if count != tt.wantCount {
				t.Errorf("count:\ngot  %s\nwant %s", count, tt.wantCount)
			}

			page, args := b.BuildPage(2, 10)
			if page != tt.wantPage {
				t.Errorf("page:\ngot  %s\nwant %s", page, tt.wantPage)
			}
			if diff := cmp.Diff(tt.wantArgs, args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
