package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/dispatch/internal/ingest"
	"github.com/JaimeStill/dispatch/internal/pipeline"
	"github.com/JaimeStill/dispatch/internal/records"
	"github.com/JaimeStill/dispatch/pkg/handlers"
	"github.com/JaimeStill/dispatch/pkg/routes"
)

type processHandler struct {
	pipeline *pipeline.Orchestrator
	decoder  *ingest.Decoder
	logger   *slog.Logger
}

func newProcessHandler(
	p *pipeline.Orchestrator,
	decoder *ingest.Decoder,
	logger *slog.Logger,
) *processHandler {
	return &processHandler{
		pipeline: p,
		decoder:  decoder,
		logger:   logger.With("handler", "process"),
	}
}

func (h *processHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/process",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: h.process},
			{Method: "POST", Pattern: "/batch", Handler: h.batch},
		},
	}
}

// process runs one submission through the pipeline and returns the
// finalized record.
func (h *processHandler) process(w http.ResponseWriter, r *http.Request) {
	in, err := h.decoder.Request(r)
	if err != nil {
		handlers.RespondError(w, h.logger, ingest.MapHTTPStatus(err), err)
		return
	}

	rec, err := h.pipeline.Process(r.Context(), in)
	if err != nil {
		handlers.RespondError(w, h.logger, records.MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, rec)
}

func (h *processHandler) batch(w http.ResponseWriter, r *http.Request) {
	inputs, err := h.decoder.Batch(r)
	if err != nil {
		handlers.RespondError(w, h.logger, ingest.MapHTTPStatus(err), err)
		return
	}

	recs, err := h.pipeline.ProcessBatch(r.Context(), inputs)
	if err != nil {
		status := records.MapHTTPStatus(err)
		if errors.Is(err, r.Context().Err()) {
			status = http.StatusServiceUnavailable
		}
		handlers.RespondError(w, h.logger, status, err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, recs)
}
