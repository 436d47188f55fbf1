package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/dispatch/internal/records"
	"github.com/JaimeStill/dispatch/pkg/handlers"
	"github.com/JaimeStill/dispatch/pkg/pagination"
	"github.com/JaimeStill/dispatch/pkg/routes"
)

var errInvalidID = errors.New("invalid record id")

type recordsHandler struct {
	store      records.Store
	logger     *slog.Logger
	pagination pagination.Config
}

func newRecordsHandler(
	store records.Store,
	logger *slog.Logger,
	pagination pagination.Config,
) *recordsHandler {
	return &recordsHandler{
		store:      store,
		logger:     logger.With("handler", "records"),
		pagination: pagination,
	}
}

func (h *recordsHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/records",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.list},
			{Method: "GET", Pattern: "/{id}", Handler: h.find},
			{Method: "GET", Pattern: "/{id}/trace", Handler: h.trace},
		},
	}
}

func (h *recordsHandler) list(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := records.FiltersFromQuery(r.URL.Query())

	result, err := h.store.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *recordsHandler) find(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	handlers.RespondJSON(w, http.StatusOK, rec)
}

func (h *recordsHandler) trace(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	handlers.RespondJSON(w, http.StatusOK, rec.Trace)
}

func (h *recordsHandler) lookup(w http.ResponseWriter, r *http.Request) (*records.ProcessingRecord, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errInvalidID)
		return nil, false
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, records.MapHTTPStatus(err), err)
		return nil, false
	}
	return rec, true
}
