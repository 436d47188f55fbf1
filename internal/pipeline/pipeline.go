// Package pipeline drives each request through format and intent
// classification, format-specific extraction, priority resolution and action
// routing, recording an audit trace along the way.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/dispatch/internal/actions"
	"github.com/JaimeStill/dispatch/internal/classify"
	"github.com/JaimeStill/dispatch/internal/lexicon"
	"github.com/JaimeStill/dispatch/internal/priority"
	"github.com/JaimeStill/dispatch/internal/processors"
	"github.com/JaimeStill/dispatch/internal/records"
)

// Trace agents.
const (
	AgentOrchestrator = "orchestrator"
	AgentFormat       = "format_classifier"
	AgentIntent       = "intent_classifier"
	AgentPriority     = "priority_resolver"
	AgentRouter       = "action_router"
)

// Trace actions, in emission order.
const (
	EventReceived     = "request_received"
	EventDetected     = "format_detected"
	EventUnrecognized = "format_unrecognized"
	EventClassified   = "intent_classified"
	EventExtracted    = "fields_extracted"
	EventPrioritized  = "priority_resolved"
	EventSelected     = "action_selected"
	EventExecuted     = "action_executed"
)

// Input is an ingested payload ready for processing.
type Input struct {
	Source   records.Source `json:"source"`
	Payload  string         `json:"payload"`
	FilePath string         `json:"file_path,omitempty"`
}

// Archiver receives every finalized record. Failures are logged and never
// affect the record.
type Archiver interface {
	Archive(ctx context.Context, rec *records.ProcessingRecord) error
}

// Orchestrator is the only component that calls more than one stage. Stages
// return values; the Orchestrator alone writes them and their trace events
// to the store.
type Orchestrator struct {
	store      records.Store
	formats    *classify.FormatClassifier
	intents    *classify.IntentClassifier
	priorities *priority.Resolver
	processors processors.Registry
	router     *actions.Router
	archive    Archiver
	logger     *slog.Logger
	workers    int
	now        func() time.Time
}

// New wires the pipeline stages. archive may be nil.
func New(
	cfg Config,
	store records.Store,
	lex *lexicon.Lexicon,
	exec actions.Executor,
	archive Archiver,
	logger *slog.Logger,
) *Orchestrator {
	pc := priority.DefaultConfig()
	pc.Merge(&cfg.Priority)

	thresholds := processors.DefaultThresholds()
	thresholds.HighValue = pc.InvoiceTotal

	return &Orchestrator{
		store:      store,
		formats:    classify.NewFormatClassifier(),
		intents:    classify.NewIntentClassifier(lex),
		priorities: priority.NewResolver(pc, lex),
		processors: processors.NewRegistry(lex, thresholds),
		router:     actions.NewRouter(exec, logger),
		archive:    archive,
		logger:     logger.With("system", "pipeline"),
		workers:    max(cfg.Workers, 1),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Process runs one input to a terminal ActionResult and returns the stored
// record. Malformed input never fails; only store errors are returned.
func (o *Orchestrator) Process(ctx context.Context, in Input) (*records.ProcessingRecord, error) {
	id, err := o.store.Create(ctx, records.Request{
		Source:   in.Source,
		Payload:  in.Payload,
		FilePath: in.FilePath,
	})
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}

	t := &tracer{o: o, ctx: ctx, id: id}
	t.emit(AgentOrchestrator, EventReceived, map[string]any{
		"source":    in.Source,
		"file_path": in.FilePath,
		"bytes":     len(in.Payload),
	})

	det := o.formats.Detect(in.Payload, in.Source, in.FilePath)
	if det.Recognized() {
		t.emit(AgentFormat, EventDetected, det)
	} else {
		t.emit(AgentFormat, EventUnrecognized, map[string]any{
			"format": det.Format,
			"rule":   det.Rule,
			"error":  classify.ErrFormatUnrecognized.Error(),
		})
	}

	intent := classify.IntentResult{Intent: records.IntentOther, Evidence: []string{}}
	if det.Recognized() {
		intent = o.intents.Classify(classify.NormalizeText(in.Payload, det.Format))
	}
	t.emit(AgentIntent, EventClassified, intent)

	result := o.processors.Extract(det.Format, in.Payload)
	t.emit(result.Processor, EventExtracted, map[string]any{
		"format":      result.Format,
		"fields":      len(result.Fields),
		"parse_error": result.ParseError,
		"error":       result.Error,
		"signals":     result.Signals,
	})

	pd := o.priorities.Resolve(priority.Input{
		Intent:     intent.Intent,
		Confidence: intent.Confidence,
		Evidence:   intent.Evidence,
		Signals:    result.Signals,
	})
	t.emit(AgentPriority, EventPrioritized, pd)

	c := records.Classification{
		Format:           det.Format,
		FormatConfidence: det.Confidence,
		Intent:           intent.Intent,
		Confidence:       intent.Confidence,
		Priority:         pd.Priority,
		PriorityRule:     pd.Rule,
		Evidence:         intent.Evidence,
	}
	if t.err == nil {
		t.err = o.store.SetClassification(ctx, id, c)
	}
	if t.err == nil {
		t.err = o.store.SetProcessingResult(ctx, id, result)
	}

	decision, action := o.router.Route(ctx, id, c, result)
	t.emit(AgentRouter, EventSelected, decision)
	t.emit(AgentRouter, EventExecuted, map[string]any{
		"status":     action.Status,
		"identifier": action.Identifier,
		"message":    action.Message,
	})

	if t.err == nil {
		t.err = o.store.SetActionResult(ctx, id, action)
	}
	if t.err != nil {
		return nil, fmt.Errorf("record %s: %w", id, t.err)
	}

	rec, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", id, err)
	}

	o.logger.Info(
		"request finalized",
		"id", id,
		"format", c.Format,
		"intent", c.Intent,
		"priority", c.Priority,
		"action", action.Type,
		"status", action.Status,
	)

	if o.archive != nil {
		if err := o.archive.Archive(ctx, rec); err != nil {
			o.logger.Warn("archive failed", "id", id, "error", err)
		}
	}

	return rec, nil
}

// ProcessBatch processes independent inputs on a bounded worker pool. Results
// are returned in input order. The first store error cancels the remaining
// work and is returned with whatever records completed.
func (o *Orchestrator) ProcessBatch(ctx context.Context, inputs []Input) ([]*records.ProcessingRecord, error) {
	out := make([]*records.ProcessingRecord, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for i, in := range inputs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			rec, err := o.Process(gctx, in)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			out[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// tracer appends trace events for one record and holds the first store
// error so the remaining stages can still run to a decision.
type tracer struct {
	o   *Orchestrator
	ctx context.Context
	id  uuid.UUID
	err error
}

func (t *tracer) emit(agent, action string, payload any) {
	if t.err != nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.err = fmt.Errorf("encode %s trace: %w", action, err)
		return
	}

	t.err = t.o.store.AppendTrace(t.ctx, t.id, records.TraceEntry{
		Timestamp: t.o.now(),
		Agent:     agent,
		Action:    action,
		Payload:   data,
	})
}
