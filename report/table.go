package report

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/kova98/smallfeed/feed"
)

var Headers = []string{"Title", "Subreddit", "Scores", "Comments", "Url"}

// Print writes every row as a single table. Cells are never wrapped or
// truncated.
func Print(w io.Writer, rows []feed.Row) error {
	ew := &errWriter{w: w}

	table := tablewriter.NewWriter(ew)
	table.SetHeader(Headers)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.AppendBulk(Cells(rows))
	table.Render()

	return ew.err
}

func Cells(rows []feed.Row) [][]string {
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, []string{
			r.Title,
			r.Subreddit,
			strconv.Itoa(r.Scores),
			strconv.Itoa(r.Comments),
			r.Url,
		})
	}
	return cells
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}
