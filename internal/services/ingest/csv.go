package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"OVIP/internal/domain/models"
	"OVIP/pkg/util"
)

var (
	ErrNoDataFile = errors.New("no data file found")
	ErrBadDate    = errors.New("unparseable date")
	ErrBadValue   = errors.New("unparseable value")
)

// PerformanceColumns are merged from the model-performance file.
var PerformanceColumns = []string{"Predicted_Vol", "Error", "Uncertainty_Factor"}

// ReadCSV parses a CSV with a header row into a canonical panel sorted by date.
// Canonical numeric columns must parse; extra columns that hold non-numeric text
// are dropped.
func ReadCSV(r io.Reader) (*models.MarketPanel, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read csv: empty input")
	}

	res := ResolveColumns(records[0])
	rows := records[1:]
	n := len(rows)
	p := &models.MarketPanel{}

	if i, ok := res.Index[models.ColDate]; ok {
		p.Dates = make([]time.Time, n)
		for r, rec := range rows {
			d, ok := util.ParseTime(rec[i])
			if !ok {
				return nil, fmt.Errorf("row %d: %w: %q", r+2, ErrBadDate, rec[i])
			}
			p.Dates[r] = d
		}
	}

	for _, c := range models.RawColumnOrder {
		i, ok := res.Index[c]
		if !ok {
			continue
		}
		s, bad := parseColumn(rows, i)
		if bad >= 0 {
			return nil, fmt.Errorf("row %d column %s: %w: %q", bad+2, c, ErrBadValue, rows[bad][i])
		}
		p.SetColumn(c, s)
	}

	for name, i := range res.Extra {
		s, bad := parseColumn(rows, i)
		if bad >= 0 {
			continue
		}
		p.SetColumn(models.Column(name), s)
	}

	sortByDate(p)
	return p, nil
}

// parseColumn returns the series and the first unparseable row, or -1.
func parseColumn(rows [][]string, i int) (models.Series, int) {
	s := make(models.Series, len(rows))
	for r, rec := range rows {
		v, ok := util.ParseFloatMissing(rec[i])
		if !ok {
			return nil, r
		}
		s[r] = v
	}
	return s, -1
}

// sortByDate reorders every column by date, keeping the input order for ties.
func sortByDate(p *models.MarketPanel) {
	if !p.HasDates() {
		return
	}
	idx := make([]int, len(p.Dates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return p.Dates[idx[a]].Before(p.Dates[idx[b]]) })

	sorted := true
	for i, j := range idx {
		if i != j {
			sorted = false
			break
		}
	}
	if sorted {
		return
	}

	dates := make([]time.Time, len(idx))
	for i, j := range idx {
		dates[i] = p.Dates[j]
	}
	p.Dates = dates
	for _, c := range p.RawColumns() {
		if c == models.ColDate {
			continue
		}
		src, _ := p.Column(c)
		dst := make(models.Series, len(idx))
		for i, j := range idx {
			dst[i] = src[j]
		}
		p.SetColumn(c, dst)
	}
}

// MergePerformance left-joins the performance columns of perf onto panel by date.
// The first perf row wins when a date repeats. Panels without dates are returned as is.
func MergePerformance(panel, perf *models.MarketPanel) *models.MarketPanel {
	out := panel.Clone()
	if !panel.HasDates() || perf == nil || !perf.HasDates() {
		return out
	}

	byDate := make(map[int64]int, len(perf.Dates))
	for i, d := range perf.Dates {
		k := d.UnixNano()
		if _, ok := byDate[k]; !ok {
			byDate[k] = i
		}
	}

	for _, name := range PerformanceColumns {
		src, ok := perf.Column(models.Column(name))
		if !ok {
			continue
		}
		dst := models.NewSeries(out.Len())
		for i, d := range out.Dates {
			if j, ok := byDate[d.UnixNano()]; ok {
				dst[i] = src[j]
			}
		}
		out.SetColumn(models.Column(name), dst)
	}
	return out
}

// WriteCSV writes the given columns of an engineered panel. Missing values are empty.
func WriteCSV(w io.Writer, p *models.EngineeredPanel, cols []models.Column) error {
	cw := csv.NewWriter(w)

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = string(c)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	rec := make([]string, len(cols))
	for r := 0; r < p.Len(); r++ {
		for i, c := range cols {
			rec[i] = ""
			if c == models.ColDate {
				if p.HasDates() {
					rec[i] = p.Dates[r].Format("2006-01-02")
				}
				continue
			}
			s, ok := p.Column(c)
			if !ok {
				continue
			}
			if v := s.At(r); !math.IsNaN(v) {
				rec[i] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", r, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
