package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Probe summarizes a workbook file so import can validate a download
// before replacing the target.
type Probe struct {
	Sheet  string   // the sheet that was probed
	Sheets []string // all sheet names in the workbook
	Rows   int      // row count on the probed sheet, headers included
}

// ProbeXLSX opens the file as an xlsx workbook and checks that the named
// sheet exists and holds at least one row. An empty sheet name probes the
// first sheet. A payload that is not a workbook (an HTML error page, a
// truncated download) fails here, before the import touches the target.
func ProbeXLSX(path string, sheet string) (*Probe, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}

	names := make([]string, len(f.Sheets))
	for i, s := range f.Sheets {
		names[i] = s.Name
	}

	target := f.Sheets[0]
	if sheet != "" {
		s, ok := f.Sheet[sheet]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found (workbook has: %s)", sheet, strings.Join(names, ", "))
		}
		target = s
	}

	if len(target.Rows) == 0 {
		return nil, eris.Errorf("xlsx: sheet %q is empty", target.Name)
	}

	return &Probe{
		Sheet:  target.Name,
		Sheets: names,
		Rows:   len(target.Rows),
	}, nil
}
