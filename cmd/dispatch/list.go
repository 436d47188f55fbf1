package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/dispatch/internal/records"
	"github.com/JaimeStill/dispatch/pkg/pagination"
)

func newListCmd(flags *rootFlags) *cobra.Command {
	var (
		page     pagination.PageRequest
		filters  records.Filters
		source   string
		status   string
		format   string
		intent   string
		priority string
		action   string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			filters = records.Filters{
				Source:     optional(source),
				Status:     optional(status),
				Format:     optional(format),
				Intent:     optional(intent),
				Priority:   optional(priority),
				ActionType: optional(action),
			}
			page.Normalize(a.cfg.API.Pagination)

			result, err := a.infra.Records.List(cmd.Context(), page, filters)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.output == "json" {
				return writeJSON(out, result)
			}

			rows := make([][]string, 0, len(result.Data))
			for _, s := range result.Data {
				rows = append(rows, []string{
					s.ID.String(),
					s.CreatedAt.Format("2006-01-02 15:04:05"),
					string(s.Source),
					string(s.Format),
					string(s.Intent),
					string(s.Priority),
					string(s.ActionType),
					string(s.Status),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "CREATED", "SOURCE", "FORMAT", "INTENT", "PRIORITY", "ACTION", "STATUS"},
				rows,
			))
			_, err = fmt.Fprintf(out, "page %d of %d (%d records)\n", result.Page, result.TotalPages, result.Total)
			return err
		},
	}

	f := cmd.Flags()
	f.IntVar(&page.Page, "page", 1, "Page number")
	f.IntVar(&page.PageSize, "page-size", 0, "Records per page (default from config)")
	f.StringVar(&source, "source", "", "Filter by source")
	f.StringVar(&status, "status", "", "Filter by status")
	f.StringVar(&format, "format", "", "Filter by format")
	f.StringVar(&intent, "intent", "", "Filter by intent")
	f.StringVar(&priority, "priority", "", "Filter by priority")
	f.StringVar(&action, "action", "", "Filter by action type")
	return cmd
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
