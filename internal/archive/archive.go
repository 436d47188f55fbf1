// Package archive writes finalized processing records to blob storage as
// JSON documents and reads them back.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"github.com/google/uuid"

	"github.com/JaimeStill/dispatch/internal/records"
	"github.com/JaimeStill/dispatch/pkg/storage"
)

const contentType = "application/json"

// Archive stores one blob per record under prefix, keyed by record id.
type Archive struct {
	store  storage.System
	prefix string
	logger *slog.Logger
}

func New(store storage.System, prefix string, logger *slog.Logger) *Archive {
	return &Archive{
		store:  store,
		prefix: prefix,
		logger: logger.With("system", "archive"),
	}
}

// Key returns the blob key for a record id.
func (a *Archive) Key(id uuid.UUID) string {
	return path.Join(a.prefix, id.String()+".json")
}

// Archive uploads rec, replacing any earlier copy.
func (a *Archive) Archive(ctx context.Context, rec *records.ProcessingRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.Request.ID, err)
	}

	key := a.Key(rec.Request.ID)
	opts := &storage.UploadOptions{ContentType: contentType, Metadata: Metadata(rec)}
	if err := a.store.Upload(ctx, key, bytes.NewReader(data), opts); err != nil {
		return err
	}

	a.logger.Debug("record archived", "id", rec.Request.ID, "key", key, "bytes", len(data))
	return nil
}

// Metadata returns the blob metadata recorded alongside an archived record.
// Fields the record has not reached yet are omitted.
func Metadata(rec *records.ProcessingRecord) map[string]string {
	md := map[string]string{
		"source": string(rec.Request.Source),
		"status": string(rec.Status),
	}
	if c := rec.Classification; c != nil {
		md["format"] = string(c.Format)
		md["intent"] = string(c.Intent)
		md["priority"] = string(c.Priority)
	}
	if r := rec.ActionResult; r != nil {
		md["action"] = string(r.Type)
	}
	return md
}

// Fetch reads an archived record. Returns storage.ErrNotFound when the record
// was never archived.
func (a *Archive) Fetch(ctx context.Context, id uuid.UUID) (*records.ProcessingRecord, error) {
	body, err := a.store.Download(ctx, a.Key(id))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var rec records.ProcessingRecord
	if err := json.NewDecoder(body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode archived record %s: %w", id, err)
	}
	return &rec, nil
}
