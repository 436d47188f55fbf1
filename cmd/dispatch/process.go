package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/dispatch/internal/ingest"
	"github.com/JaimeStill/dispatch/internal/pipeline"
	"github.com/JaimeStill/dispatch/internal/records"
)

const defaultMaxFileSize = 25 * 1024 * 1024

func newProcessCmd(flags *rootFlags) *cobra.Command {
	var (
		jsonPayloads  []string
		emailPayloads []string
	)

	cmd := &cobra.Command{
		Use:   "process [file...]",
		Short: "Run files or inline payloads through the pipeline",
		Long: `Process each file argument and each --json / --email payload. A file
named "-" is read from standard input. PDFs are decoded to text first.
Inputs are processed concurrently; results print in argument order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(jsonPayloads) == 0 && len(emailPayloads) == 0 {
				return fmt.Errorf("nothing to process: pass files, --json or --email")
			}

			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			maxSize := a.cfg.API.MaxUploadSizeBytes()
			if maxSize <= 0 {
				maxSize = defaultMaxFileSize
			}
			decoder := ingest.NewDecoder(a.infra.Logger, maxSize)

			inputs, err := collectInputs(cmd.InOrStdin(), decoder, args, jsonPayloads, emailPayloads)
			if err != nil {
				return err
			}

			recs, err := a.infra.Pipeline(a.cfg.Pipeline).ProcessBatch(cmd.Context(), inputs)
			if err != nil {
				return err
			}

			if flags.output == "json" {
				return writeJSON(cmd.OutOrStdout(), recs)
			}
			return writeProcessed(cmd.OutOrStdout(), recs)
		},
	}

	cmd.Flags().StringArrayVar(&jsonPayloads, "json", nil, "Inline JSON payload (repeatable)")
	cmd.Flags().StringArrayVar(&emailPayloads, "email", nil, "Inline email text (repeatable)")
	return cmd
}

func collectInputs(
	stdin io.Reader,
	decoder *ingest.Decoder,
	files, jsonPayloads, emailPayloads []string,
) ([]pipeline.Input, error) {
	inputs := make([]pipeline.Input, 0, len(files)+len(jsonPayloads)+len(emailPayloads))

	for _, path := range files {
		if path == "-" {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return nil, fmt.Errorf("read stdin: %w", err)
			}
			inputs = append(inputs, decoder.File("stdin", data))
			continue
		}

		in, err := decoder.ReadFile(path)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}

	for _, p := range jsonPayloads {
		inputs = append(inputs, ingest.JSON(p))
	}
	for _, p := range emailPayloads {
		inputs = append(inputs, ingest.Email(strings.ReplaceAll(p, `\n`, "\n")))
	}
	return inputs, nil
}

func writeProcessed(w io.Writer, recs []*records.ProcessingRecord) error {
	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, processedRow(rec))
	}
	_, err := fmt.Fprintln(w, renderTable(
		[]string{"ID", "SOURCE", "FORMAT", "INTENT", "PRIORITY", "ACTION", "STATUS", "IDENTIFIER"},
		rows,
	))
	return err
}

func processedRow(rec *records.ProcessingRecord) []string {
	row := []string{rec.Request.ID.String(), string(rec.Request.Source), "", "", "", "", "", ""}
	if c := rec.Classification; c != nil {
		row[2], row[3], row[4] = string(c.Format), string(c.Intent), string(c.Priority)
	}
	if a := rec.ActionResult; a != nil {
		row[5], row[6], row[7] = string(a.Type), string(a.Status), a.Identifier
	}
	return row
}
