package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/dispatch/pkg/pagination"
	"github.com/JaimeStill/dispatch/pkg/query"
	"github.com/JaimeStill/dispatch/pkg/repository"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var projection = query.
	NewProjectionMap("requests", "r").
	Project("id", "id").
	Project("source", "source").
	Project("status", "status").
	Project("format", "format").
	Project("intent", "intent").
	Project("priority", "priority").
	Project("action_type", "action_type").
	Project("created_at", "created_at").
	Filter("payload", "payload")

var defaultSort = query.SortField{
	Field:      "created_at",
	Descending: true,
}

type sqlStore struct {
	db         *sql.DB
	dialect    Dialect
	logger     *slog.Logger
	pagination pagination.Config
	now        func() time.Time
}

// NewSQL creates a Store backed by db. The schema must already be migrated;
// see Migrate.
func NewSQL(
	db *sql.DB,
	dialect Dialect,
	logger *slog.Logger,
	pagination pagination.Config,
) Store {
	return &sqlStore{
		db:         db,
		dialect:    dialect,
		logger:     logger.With("system", "records", "dialect", string(dialect)),
		pagination: pagination,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *sqlStore) Create(ctx context.Context, req Request) (uuid.UUID, error) {
	req, err := prepare(req, s.now)
	if err != nil {
		return uuid.Nil, err
	}

	q := `
		INSERT INTO requests(id, source, payload, file_path, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = s.db.ExecContext(
		ctx, s.rebind(q),
		req.ID, string(req.Source), req.Payload, req.FilePath, formatTime(req.CreatedAt),
	)
	if err != nil {
		return uuid.Nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	s.logger.Debug("record created", "id", req.ID, "source", req.Source)
	return req.ID, nil
}

func (s *sqlStore) AppendTrace(ctx context.Context, id uuid.UUID, te TraceEntry) error {
	lock := s.rebind("SELECT id FROM requests WHERE id = $1")
	if s.dialect == Postgres {
		lock += " FOR UPDATE"
	}

	_, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		var found uuid.UUID
		if err := tx.QueryRowContext(ctx, lock, id).Scan(&found); err != nil {
			return struct{}{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
		}

		var last int
		next := s.rebind("SELECT COALESCE(MAX(seq), 0) FROM traces WHERE request_id = $1")
		if err := tx.QueryRowContext(ctx, next, id).Scan(&last); err != nil {
			return struct{}{}, fmt.Errorf("next trace seq: %w", err)
		}

		insert := `
			INSERT INTO traces(request_id, seq, emitted_at, agent, action, payload)
			VALUES ($1, $2, $3, $4, $5, $6)`

		_, err := tx.ExecContext(
			ctx, s.rebind(insert),
			id, last+1, formatTime(te.Timestamp), te.Agent, te.Action, nullableJSON(te.Payload),
		)
		return struct{}{}, err
	})

	return err
}

func (s *sqlStore) SetClassification(ctx context.Context, id uuid.UUID, c Classification) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode classification: %w", err)
	}

	q := `
		UPDATE requests
		SET classification = $1, format = $2, intent = $3, priority = $4,
			status = CASE
				WHEN action_result IS NOT NULL THEN 'completed'
				WHEN processing_result IS NOT NULL THEN 'processed'
				ELSE 'classified'
			END
		WHERE id = $5 AND classification IS NULL`

	return s.setOnce(ctx, "classification", q, string(data), string(c.Format), string(c.Intent), string(c.Priority), id)
}

func (s *sqlStore) SetProcessingResult(ctx context.Context, id uuid.UUID, r ProcessingResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode processing result: %w", err)
	}

	q := `
		UPDATE requests
		SET processing_result = $1,
			status = CASE WHEN action_result IS NOT NULL THEN 'completed' ELSE 'processed' END
		WHERE id = $2 AND processing_result IS NULL`

	return s.setOnce(ctx, "processing_result", q, string(data), id)
}

func (s *sqlStore) SetActionResult(ctx context.Context, id uuid.UUID, a ActionResult) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode action result: %w", err)
	}

	q := `
		UPDATE requests
		SET action_result = $1, action_type = $2, status = 'completed'
		WHERE id = $3 AND action_result IS NULL`

	return s.setOnce(ctx, "action_result", q, string(data), string(a.Type), id)
}

func (s *sqlStore) Get(ctx context.Context, id uuid.UUID) (*ProcessingRecord, error) {
	q := `
		SELECT id, source, payload, file_path, created_at, status,
			classification, processing_result, action_result
		FROM requests WHERE id = $1`

	rec, err := repository.QueryOne(ctx, s.db, s.rebind(q), []any{id}, scanRecord)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	tq := `
		SELECT seq, emitted_at, agent, action, payload
		FROM traces WHERE request_id = $1 ORDER BY seq`

	trace, err := repository.QueryMany(ctx, s.db, s.rebind(tq), []any{id}, scanTrace)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	rec.Trace = trace

	return rec, nil
}

func (s *sqlStore) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Summary], error) {
	page.Normalize(s.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("source", filters.Source).
		WhereEquals("status", filters.Status).
		WhereEquals("format", filters.Format).
		WhereEquals("intent", filters.Intent).
		WhereEquals("priority", filters.Priority).
		WhereEquals("action_type", filters.ActionType).
		WhereContains("payload", page.Search)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := s.db.QueryRowContext(ctx, s.rebind(countSQL), countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, s.db, s.rebind(pageSQL), pageArgs, scanSummary)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// setOnce runs a conditional update guarded by "field IS NULL". When no row
// changes it distinguishes a missing record from one already written.
func (s *sqlStore) setOnce(ctx context.Context, field, q string, args ...any) error {
	err := repository.ExecExpectOne(ctx, s.db, s.rebind(q), args...)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("set %s: %w", field, err)
	}

	id := args[len(args)-1]
	var found uuid.UUID
	err = s.db.QueryRowContext(ctx, s.rebind("SELECT id FROM requests WHERE id = $1"), id).Scan(&found)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	return fmt.Errorf("%w: %s", ErrAlreadySet, field)
}

// rebind rewrites $n placeholders to SQLite's ?n form.
func (s *sqlStore) rebind(q string) string {
	if s.dialect == SQLite {
		return repository.Rebind(q, repository.Question)
	}
	return repository.Rebind(q, repository.Dollar)
}

func scanRecord(sc repository.Scanner) (*ProcessingRecord, error) {
	var (
		rec            ProcessingRecord
		source         string
		status         string
		createdAt      string
		classification []byte
		result         []byte
		action         []byte
	)

	err := sc.Scan(
		&rec.Request.ID, &source, &rec.Request.Payload, &rec.Request.FilePath,
		&createdAt, &status, &classification, &result, &action,
	)
	if err != nil {
		return nil, err
	}

	rec.Request.Source = Source(source)
	rec.Status = Status(status)
	if rec.Request.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	if classification != nil {
		rec.Classification = new(Classification)
		if err := json.Unmarshal(classification, rec.Classification); err != nil {
			return nil, fmt.Errorf("decode classification: %w", err)
		}
	}
	if result != nil {
		rec.ProcessingResult = new(ProcessingResult)
		if err := json.Unmarshal(result, rec.ProcessingResult); err != nil {
			return nil, fmt.Errorf("decode processing result: %w", err)
		}
	}
	if action != nil {
		rec.ActionResult = new(ActionResult)
		if err := json.Unmarshal(action, rec.ActionResult); err != nil {
			return nil, fmt.Errorf("decode action result: %w", err)
		}
	}

	return &rec, nil
}

func scanTrace(sc repository.Scanner) (TraceEntry, error) {
	var (
		te        TraceEntry
		emittedAt string
		payload   []byte
	)

	if err := sc.Scan(&te.Seq, &emittedAt, &te.Agent, &te.Action, &payload); err != nil {
		return te, err
	}

	ts, err := parseTime(emittedAt)
	if err != nil {
		return te, err
	}
	te.Timestamp = ts

	if payload != nil {
		te.Payload = json.RawMessage(payload)
	}
	return te, nil
}

func scanSummary(sc repository.Scanner) (Summary, error) {
	var (
		s          Summary
		source     string
		status     string
		format     sql.NullString
		intent     sql.NullString
		priority   sql.NullString
		actionType sql.NullString
		createdAt  string
	)

	err := sc.Scan(&s.ID, &source, &status, &format, &intent, &priority, &actionType, &createdAt)
	if err != nil {
		return s, err
	}

	s.Source = Source(source)
	s.Status = Status(status)
	s.Format = Format(format.String)
	s.Intent = Intent(intent.String)
	s.Priority = Priority(priority.String)
	s.ActionType = ActionType(actionType.String)
	s.CreatedAt, err = parseTime(createdAt)
	return s, err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return t, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
