package records

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/dispatch/pkg/pagination"
)

type entry struct {
	mu             sync.Mutex
	request        Request
	classification *Classification
	result         []byte
	action         *ActionResult
	trace          []TraceEntry
}

type memory struct {
	mu         sync.RWMutex
	records    map[uuid.UUID]*entry
	order      []uuid.UUID
	pagination pagination.Config
	now        func() time.Time
}

// NewMemory creates a process-local Store. Each record carries its own lock,
// so writes to different records never contend.
func NewMemory(pagination pagination.Config) Store {
	return &memory{
		records:    make(map[uuid.UUID]*entry),
		pagination: pagination,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *memory) Create(ctx context.Context, req Request) (uuid.UUID, error) {
	req, err := prepare(req, m.now)
	if err != nil {
		return uuid.Nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[req.ID]; ok {
		return uuid.Nil, ErrDuplicate
	}

	m.records[req.ID] = &entry{request: req, trace: []TraceEntry{}}
	m.order = append(m.order, req.ID)
	return req.ID, nil
}

func (m *memory) AppendTrace(ctx context.Context, id uuid.UUID, te TraceEntry) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	te.Seq = len(e.trace) + 1
	te.Payload = slices.Clone(te.Payload)
	e.trace = append(e.trace, te)
	return nil
}

func (m *memory) SetClassification(ctx context.Context, id uuid.UUID, c Classification) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.classification != nil {
		return fmt.Errorf("%w: classification", ErrAlreadySet)
	}

	c.Evidence = slices.Clone(c.Evidence)
	e.classification = &c
	return nil
}

func (m *memory) SetProcessingResult(ctx context.Context, id uuid.UUID, r ProcessingResult) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode processing result: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.result != nil {
		return fmt.Errorf("%w: processing_result", ErrAlreadySet)
	}

	e.result = data
	return nil
}

func (m *memory) SetActionResult(ctx context.Context, id uuid.UUID, a ActionResult) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.action != nil {
		return fmt.Errorf("%w: action_result", ErrAlreadySet)
	}

	e.action = &a
	return nil
}

func (m *memory) Get(ctx context.Context, id uuid.UUID) (*ProcessingRecord, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec := &ProcessingRecord{
		Request: e.request,
		Status:  statusOf(e.classification != nil, e.result != nil, e.action != nil),
		Trace:   make([]TraceEntry, len(e.trace)),
	}

	for i, te := range e.trace {
		te.Payload = slices.Clone(te.Payload)
		rec.Trace[i] = te
	}

	if e.classification != nil {
		c := *e.classification
		c.Evidence = slices.Clone(c.Evidence)
		rec.Classification = &c
	}

	if e.result != nil {
		var r ProcessingResult
		if err := json.Unmarshal(e.result, &r); err != nil {
			return nil, fmt.Errorf("decode processing result: %w", err)
		}
		rec.ProcessingResult = &r
	}

	if e.action != nil {
		a := *e.action
		rec.ActionResult = &a
	}

	return rec, nil
}

func (m *memory) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Summary], error) {
	page.Normalize(m.pagination)

	m.mu.RLock()
	ids := slices.Clone(m.order)
	m.mu.RUnlock()

	matched := make([]Summary, 0, len(ids))
	for _, id := range ids {
		e, err := m.lookup(id)
		if err != nil {
			continue
		}
		if s := e.summary(); filters.match(s) && e.contains(page.Search) {
			matched = append(matched, s)
		}
	}

	ascending := len(page.Sort) > 0 && page.Sort[0].Field == "created_at" && !page.Sort[0].Descending
	slices.SortStableFunc(matched, func(a, b Summary) int {
		if ascending {
			return a.CreatedAt.Compare(b.CreatedAt)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	total := len(matched)
	start := min(page.Offset(), total)
	end := min(start+page.PageSize, total)

	result := pagination.NewPageResult(matched[start:end], total, page.Page, page.PageSize)
	return &result, nil
}

func (m *memory) Close() error {
	return nil
}

func (m *memory) lookup(id uuid.UUID) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (e *entry) summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Summary{
		ID:        e.request.ID,
		Source:    e.request.Source,
		Status:    statusOf(e.classification != nil, e.result != nil, e.action != nil),
		CreatedAt: e.request.CreatedAt,
	}
	if e.classification != nil {
		s.Format = e.classification.Format
		s.Intent = e.classification.Intent
		s.Priority = e.classification.Priority
	}
	if e.action != nil {
		s.ActionType = e.action.Type
	}
	return s
}

func (e *entry) contains(search *string) bool {
	if search == nil || *search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.request.Payload), strings.ToLower(*search))
}

func prepare(req Request, now func() time.Time) (Request, error) {
	if !req.Source.Valid() {
		return req, fmt.Errorf("%w: %q", ErrInvalidSource, req.Source)
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now()
	}
	req.CreatedAt = req.CreatedAt.UTC()
	return req, nil
}
