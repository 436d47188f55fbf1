// Package ingest builds pipeline inputs from HTTP bodies, form values,
// multipart uploads and local files. PDF uploads are decoded to their drawn
// text before they reach the pipeline, which never touches files itself.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/JaimeStill/dispatch/internal/pipeline"
	"github.com/JaimeStill/dispatch/internal/records"
	"github.com/JaimeStill/dispatch/pkg/formatting"
)

// Form field names accepted by Request.
const (
	FieldFile  = "file"
	FieldJSON  = "json_data"
	FieldEmail = "email_data"
)

// formOverhead is the allowance for multipart boundaries and form fields on
// top of the file size limit.
const formOverhead = 64 << 10

var pdfMagic = []byte("%PDF-")

// Decoder converts raw submissions into pipeline inputs.
type Decoder struct {
	logger  *slog.Logger
	maxSize int64
}

// NewDecoder creates a Decoder that rejects bodies larger than maxSize bytes.
func NewDecoder(logger *slog.Logger, maxSize int64) *Decoder {
	return &Decoder{
		logger:  logger.With("system", "ingest"),
		maxSize: maxSize,
	}
}

// JSON tags payload as a JSON submission. The payload is not validated here;
// malformed documents are handled downstream.
func JSON(payload string) pipeline.Input {
	return pipeline.Input{Source: records.SourceJSON, Payload: payload}
}

// Email tags text as an email submission.
func Email(text string) pipeline.Input {
	return pipeline.Input{Source: records.SourceEmail, Payload: text}
}

// Request reads a single submission. Multipart and url-encoded forms carry
// one of the file, json_data or email_data fields. A JSON body is a JSON
// submission and a text or message/rfc822 body is an email.
func (d *Decoder) Request(r *http.Request) (pipeline.Input, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("%w: content type", ErrUnsupportedMedia)
	}

	switch {
	case mediaType == "multipart/form-data":
		return d.multipart(r)

	case mediaType == "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(nil, r.Body, d.maxSize)
		if err := r.ParseForm(); err != nil {
			return pipeline.Input{}, bodyError(err)
		}
		return formInput(r)

	case mediaType == "application/json":
		body, err := d.body(r)
		if err != nil {
			return pipeline.Input{}, err
		}
		return JSON(body), nil

	case strings.HasPrefix(mediaType, "text/"), mediaType == "message/rfc822":
		body, err := d.body(r)
		if err != nil {
			return pipeline.Input{}, err
		}
		return Email(body), nil
	}

	return pipeline.Input{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mediaType)
}

// Batch reads a JSON array of inputs.
func (d *Decoder) Batch(r *http.Request) ([]pipeline.Input, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, d.maxSize)

	var inputs []pipeline.Input
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		if tooLarge(err) {
			return nil, ErrFileTooLarge
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(inputs) == 0 {
		return nil, ErrNoInput
	}

	for i, in := range inputs {
		if !in.Source.Valid() {
			return nil, fmt.Errorf("%w: input %d: source %q", ErrInvalidInput, i, in.Source)
		}
	}
	return inputs, nil
}

// File builds an input from an uploaded or local file. PDFs are replaced by
// their decoded text; when decoding fails the raw bytes are kept so the PDF
// processor can record the parse error.
func (d *Decoder) File(name string, data []byte) pipeline.Input {
	in := pipeline.Input{Source: records.SourceFile, FilePath: name}

	if isPDF(name, data) {
		text, pages, err := PDFText(data)
		if err == nil {
			d.logger.Debug("pdf decoded", "file", name, "pages", pages, "chars", len(text))
			in.Payload = text
			return in
		}
		d.logger.Warn("pdf text extraction failed", "file", name, "error", err)
	}

	in.Payload = textOf(data)
	return in
}

// ReadFile reads path from disk and builds a file input.
func (d *Decoder) ReadFile(path string) (pipeline.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("read %s: %w", path, err)
	}
	if size := int64(len(data)); size > d.maxSize {
		return pipeline.Input{}, d.tooLarge(path, size)
	}
	return d.File(path, data), nil
}

func (d *Decoder) tooLarge(name string, size int64) error {
	return fmt.Errorf("%w: %s is %s, limit %s",
		ErrFileTooLarge, name,
		formatting.FormatBytes(size, 1), formatting.FormatBytes(d.maxSize, 0),
	)
}

func (d *Decoder) multipart(r *http.Request) (pipeline.Input, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, d.maxSize+formOverhead)
	if err := r.ParseMultipartForm(d.maxSize); err != nil {
		return pipeline.Input{}, bodyError(err)
	}

	file, header, err := r.FormFile(FieldFile)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return formInput(r)
	case err != nil:
		return pipeline.Input{}, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	defer file.Close()

	if header.Size > d.maxSize {
		return pipeline.Input{}, d.tooLarge(header.Filename, header.Size)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if len(data) == 0 {
		return pipeline.Input{}, fmt.Errorf("%w: empty file", ErrInvalidFile)
	}

	return d.File(header.Filename, data), nil
}

func (d *Decoder) body(r *http.Request) (string, error) {
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, d.maxSize))
	if err != nil {
		return "", bodyError(err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return "", ErrNoInput
	}
	return textOf(data), nil
}

func formInput(r *http.Request) (pipeline.Input, error) {
	if v := r.FormValue(FieldJSON); strings.TrimSpace(v) != "" {
		return JSON(v), nil
	}
	if v := r.FormValue(FieldEmail); strings.TrimSpace(v) != "" {
		return Email(v), nil
	}
	return pipeline.Input{}, ErrNoInput
}

func isPDF(name string, data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic) ||
		strings.EqualFold(filepath.Ext(name), ".pdf")
}

// textOf converts raw bytes to storable text: invalid UTF-8 is replaced and
// NUL bytes are dropped.
func textOf(data []byte) string {
	s := strings.ToValidUTF8(string(data), "�")
	return strings.ReplaceAll(s, "\x00", "")
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func bodyError(err error) error {
	if tooLarge(err) {
		return ErrFileTooLarge
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}
