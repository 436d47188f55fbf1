package ingest

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFText validates a PDF and returns the text drawn on every page with the
// page count. Pages are separated by a blank line.
func PDFText(data []byte) (text string, pageCount int, err error) {
	defer func() {
		if v := recover(); v != nil {
			text, pageCount, err = "", 0, fmt.Errorf("%w: reader panic: %v", ErrInvalidPDF, v)
		}
	}()

	ctx, err := api.ReadAndValidate(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			return "", 0, fmt.Errorf("%w: page %d: %v", ErrInvalidPDF, i, err)
		}
		if s := layout(runsOf(rows)); s != "" {
			pages = append(pages, s)
		}
	}

	return strings.Join(pages, "\n\n"), ctx.PageCount, nil
}

type textRun struct {
	x, y float64
	text string
}

// runsOf flattens rows into runs. Strings shown from the same origin, such
// as consecutive Tj operators or the segments of a TJ array, form one run.
func runsOf(rows pdf.Rows) []textRun {
	var runs []textRun
	for _, row := range rows {
		start := len(runs)
		for _, t := range row.Content {
			if n := len(runs); n > start && runs[n-1].x == t.X {
				runs[n-1].text += t.S
				continue
			}
			runs = append(runs, textRun{x: t.X, y: t.Y, text: t.S})
		}
	}
	return runs
}

// layout orders runs top to bottom and left to right. A line drawn as three
// or more separate runs is read as a table row and its cells joined with
// " | "; other lines join with a space.
func layout(runs []textRun) string {
	slices.SortStableFunc(runs, func(a, b textRun) int {
		if ya, yb := math.Round(a.y), math.Round(b.y); ya != yb {
			return cmp.Compare(yb, ya)
		}
		return cmp.Compare(a.x, b.x)
	})

	var lines []string
	for i := 0; i < len(runs); {
		j := i
		var cells []string
		for ; j < len(runs) && math.Round(runs[j].y) == math.Round(runs[i].y); j++ {
			if cell := strings.TrimSpace(printable(runs[j].text)); cell != "" {
				cells = append(cells, cell)
			}
		}
		i = j

		switch {
		case len(cells) == 0:
		case len(cells) >= 3:
			lines = append(lines, strings.Join(cells, " | "))
		default:
			lines = append(lines, strings.Join(cells, " "))
		}
	}

	return strings.Join(lines, "\n")
}

func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' {
			return -1
		}
		return r
	}, s)
}
