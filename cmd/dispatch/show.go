package main

import (
	"cmp"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/dispatch/internal/records"
)

func newShowCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a record with its classification, result and trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid record id %q", args[0])
			}

			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			rec, err := a.infra.Records.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			if flags.output == "json" {
				return writeJSON(cmd.OutOrStdout(), rec)
			}
			return writeRecord(cmd.OutOrStdout(), rec)
		},
	}
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	labelStyle   = lipgloss.NewStyle().Bold(true).Width(18)
)

func writeRecord(w io.Writer, rec *records.ProcessingRecord) error {
	var b strings.Builder

	section := func(title string) {
		b.WriteString("\n")
		b.WriteString(headingStyle.Render(title))
		b.WriteString("\n")
	}
	field := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	section("Request")
	field("ID", rec.Request.ID.String())
	field("Source", string(rec.Request.Source))
	field("File", rec.Request.FilePath)
	field("Received", rec.Request.CreatedAt.Format("2006-01-02 15:04:05Z07:00"))
	field("Status", string(rec.Status))

	if c := rec.Classification; c != nil {
		section("Classification")
		field("Format", fmt.Sprintf("%s (%.2f)", c.Format, c.FormatConfidence))
		field("Intent", fmt.Sprintf("%s (%.2f)", c.Intent, c.Confidence))
		field("Priority", priorityStyle(c.Priority).Render(string(c.Priority)))
		field("Priority rule", c.PriorityRule)
		field("Evidence", strings.Join(c.Evidence, ", "))
	}

	if p := rec.ProcessingResult; p != nil {
		section("Processing")
		field("Processor", p.Processor)
		if p.Signals.Total != nil {
			field("Total", strconv.FormatFloat(*p.Signals.Total, 'f', 2, 64))
		}
		if n := p.Signals.UrgencyMarkers; n > 0 {
			field("Urgency markers", strconv.Itoa(n))
		}
		field("Compliance terms", strings.Join(p.Signals.ComplianceTerms, ", "))
		if j := p.JSON; j != nil {
			field("Schema", fmt.Sprintf("%s (%.2f)", j.Schema, j.SchemaConfidence))
			field("Valid", strconv.FormatBool(j.IsValid))
			field("Missing", strings.Join(j.MissingFields, ", "))
		}
		if e := p.Email; e != nil {
			field("Tone", e.Tone)
			field("Urgency", e.Urgency)
		}
		if d := p.PDF; d != nil {
			field("Document", d.DocumentType)
			field("Line items", strconv.Itoa(len(d.LineItems)))
			for _, f := range d.Flags {
				field("Flag", fmt.Sprintf("%s [%s] %s", f.Type, f.Severity, f.Detail))
			}
		}
		if p.ParseError {
			field("Parse error", cmp.Or(p.Error, "true"))
		}
	}

	if act := rec.ActionResult; act != nil {
		section("Action")
		field("Type", string(act.Type))
		field("Status", string(act.Status))
		field("Identifier", act.Identifier)
		field("Message", act.Message)
		field("Reasoning", act.Reasoning)
	}

	section("Trace")
	rows := make([][]string, 0, len(rec.Trace))
	for _, te := range rec.Trace {
		rows = append(rows, []string{
			strconv.Itoa(te.Seq),
			te.Timestamp.Format("15:04:05.000"),
			te.Agent,
			te.Action,
		})
	}
	b.WriteString(renderTable([]string{"SEQ", "TIME", "AGENT", "ACTION"}, rows))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func priorityStyle(p records.Priority) lipgloss.Style {
	switch p {
	case records.PriorityHigh:
		return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	case records.PriorityMedium:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	}
	return lipgloss.NewStyle()
}
