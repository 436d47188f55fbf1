package api

import (
	"github.com/JaimeStill/dispatch/internal/archive"
	"github.com/JaimeStill/dispatch/internal/config"
	"github.com/JaimeStill/dispatch/internal/ingest"
	"github.com/JaimeStill/dispatch/internal/pipeline"
	"github.com/JaimeStill/dispatch/internal/records"
)

// Domain holds the systems that comprise the API. Archive is nil when
// archiving is disabled.
type Domain struct {
	Pipeline *pipeline.Orchestrator
	Records  records.Store
	Archive  *archive.Archive
	Ingest   *ingest.Decoder
}

// NewDomain creates the pipeline and its collaborators from the API runtime.
func NewDomain(cfg *config.Config, runtime *Runtime) *Domain {
	return &Domain{
		Pipeline: runtime.Pipeline(cfg.Pipeline),
		Records:  runtime.Records,
		Archive:  runtime.Archive,
		Ingest:   ingest.NewDecoder(runtime.Logger, runtime.MaxUploadSize),
	}
}
