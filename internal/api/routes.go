package api

import (
	"net/http"

	"github.com/JaimeStill/dispatch/pkg/routes"
)

func registerRoutes(mux *http.ServeMux, domain *Domain, runtime *Runtime) {
	records := newRecordsHandler(domain.Records, runtime.Logger, runtime.Pagination).routes()
	if domain.Archive != nil {
		records.Children = append(records.Children, newArchiveHandler(domain.Archive, runtime.Logger).routes())
	}

	patterns := routes.Register(mux,
		newProcessHandler(domain.Pipeline, domain.Ingest, runtime.Logger).routes(),
		records,
	)
	runtime.Logger.Debug("routes registered", "patterns", patterns)
}
