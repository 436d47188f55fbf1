package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/dispatch/internal/archive"
	"github.com/JaimeStill/dispatch/pkg/handlers"
	"github.com/JaimeStill/dispatch/pkg/routes"
	"github.com/JaimeStill/dispatch/pkg/storage"
)

type archiveHandler struct {
	archive *archive.Archive
	logger  *slog.Logger
}

func newArchiveHandler(a *archive.Archive, logger *slog.Logger) *archiveHandler {
	return &archiveHandler{
		archive: a,
		logger:  logger.With("handler", "archive"),
	}
}

func (h *archiveHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/{id}",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/archive", Handler: h.find},
		},
	}
}

// find returns the archived copy of a record, which may outlive the record
// store.
func (h *archiveHandler) find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errInvalidID)
		return
	}

	rec, err := h.archive.Fetch(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}

	w.Header().Set("X-Archive-Key", h.archive.Key(id))
	handlers.RespondJSON(w, http.StatusOK, rec)
}
