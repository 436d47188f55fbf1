package records

import (
	"context"
	"net/url"

	"github.com/google/uuid"

	"github.com/JaimeStill/dispatch/pkg/pagination"
)

// Store is the request-scoped record store. Every operation is atomic with
// respect to a single record; there are no cross-record transactions.
type Store interface {
	// Create registers a request and returns its identifier. A zero ID is
	// replaced with a generated one and a zero CreatedAt with the current time.
	// The record is visible to Get as soon as Create returns.
	Create(ctx context.Context, req Request) (uuid.UUID, error)

	// AppendTrace appends entry to the record's trace, assigning its Seq.
	AppendTrace(ctx context.Context, id uuid.UUID, entry TraceEntry) error

	SetClassification(ctx context.Context, id uuid.UUID, c Classification) error
	SetProcessingResult(ctx context.Context, id uuid.UUID, r ProcessingResult) error
	SetActionResult(ctx context.Context, id uuid.UUID, a ActionResult) error

	// Get returns a copy of the record; mutating it does not affect the store.
	Get(ctx context.Context, id uuid.UUID) (*ProcessingRecord, error)

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Summary], error)

	Close() error
}

// Filters narrows record listings. Nil fields are ignored.
type Filters struct {
	Source     *string `json:"source,omitempty"`
	Status     *string `json:"status,omitempty"`
	Format     *string `json:"format,omitempty"`
	Intent     *string `json:"intent,omitempty"`
	Priority   *string `json:"priority,omitempty"`
	ActionType *string `json:"action_type,omitempty"`
}

// FiltersFromQuery reads filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters
	f.Source = optional(values.Get("source"))
	f.Status = optional(values.Get("status"))
	f.Format = optional(values.Get("format"))
	f.Intent = optional(values.Get("intent"))
	f.Priority = optional(values.Get("priority"))
	f.ActionType = optional(values.Get("action_type"))
	return f
}

func (f Filters) match(s Summary) bool {
	return equals(f.Source, string(s.Source)) &&
		equals(f.Status, string(s.Status)) &&
		equals(f.Format, string(s.Format)) &&
		equals(f.Intent, string(s.Intent)) &&
		equals(f.Priority, string(s.Priority)) &&
		equals(f.ActionType, string(s.ActionType))
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func equals(want *string, got string) bool {
	return want == nil || *want == got
}
