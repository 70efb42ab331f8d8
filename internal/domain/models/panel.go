package models

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Series is one numeric column. NaN marks a missing value; a nil Series means
// the column is absent from the panel.
type Series []float64

// NewSeries returns a series of n missing values.
func NewSeries(n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// At returns the value at i, or NaN when i is out of range.
func (s Series) At(i int) float64 {
	if i < 0 || i >= len(s) {
		return math.NaN()
	}
	return s[i]
}

// Nullable returns nil for missing values, which keeps JSON encoders happy.
func (s Series) Nullable(i int) *float64 {
	v := s.At(i)
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// CountNaN counts missing values in rows [from, to).
func (s Series) CountNaN(from, to int) int {
	n := 0
	for i := from; i < to && i < len(s); i++ {
		if math.IsNaN(s[i]) {
			n++
		}
	}
	return n
}

// MarketPanel is the canonical, time-ordered input table. Column names are already
// resolved; alias handling happens during ingestion.
type MarketPanel struct {
	Dates      []time.Time
	Volatility Series
	CrisisProb Series
	Intensity  Series
	Score      Series
	WTI        Series
	GPR        Series
	// Extra carries additional numeric columns through untouched.
	Extra map[string]Series
}

// Len is the row count: the date column when present, otherwise the longest column.
func (p *MarketPanel) Len() int {
	if p == nil {
		return 0
	}
	if p.Dates != nil {
		return len(p.Dates)
	}
	n := 0
	for _, s := range p.series() {
		if len(s) > n {
			n = len(s)
		}
	}
	return n
}

func (p *MarketPanel) HasDates() bool { return p != nil && p.Dates != nil }

func (p *MarketPanel) series() []Series {
	out := []Series{p.Volatility, p.CrisisProb, p.Intensity, p.Score, p.WTI, p.GPR}
	for _, s := range p.Extra {
		out = append(out, s)
	}
	return out
}

// Column looks up a raw column by canonical name. Extra columns are matched by name.
func (p *MarketPanel) Column(c Column) (Series, bool) {
	var s Series
	switch c {
	case ColVolatility:
		s = p.Volatility
	case ColCrisisProb:
		s = p.CrisisProb
	case ColIntensity:
		s = p.Intensity
	case ColScore:
		s = p.Score
	case ColWTI:
		s = p.WTI
	case ColGPR:
		s = p.GPR
	default:
		s = p.Extra[string(c)]
	}
	return s, s != nil
}

// SetColumn assigns a raw column by canonical name; unknown names go to Extra.
func (p *MarketPanel) SetColumn(c Column, s Series) {
	switch c {
	case ColVolatility:
		p.Volatility = s
	case ColCrisisProb:
		p.CrisisProb = s
	case ColIntensity:
		p.Intensity = s
	case ColScore:
		p.Score = s
	case ColWTI:
		p.WTI = s
	case ColGPR:
		p.GPR = s
	default:
		if p.Extra == nil {
			p.Extra = make(map[string]Series)
		}
		p.Extra[string(c)] = s
	}
}

// RawColumns lists the present input columns: Date first, then the canonical
// columns, then extras in name order.
func (p *MarketPanel) RawColumns() []Column {
	var cols []Column
	if p.HasDates() {
		cols = append(cols, ColDate)
	}
	for _, c := range RawColumnOrder {
		if _, ok := p.Column(c); ok {
			cols = append(cols, c)
		}
	}
	extras := make([]string, 0, len(p.Extra))
	for name, s := range p.Extra {
		if s != nil {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		cols = append(cols, Column(name))
	}
	return cols
}

// Clone returns a deep copy.
func (p *MarketPanel) Clone() *MarketPanel {
	out := &MarketPanel{
		Volatility: p.Volatility.Clone(),
		CrisisProb: p.CrisisProb.Clone(),
		Intensity:  p.Intensity.Clone(),
		Score:      p.Score.Clone(),
		WTI:        p.WTI.Clone(),
		GPR:        p.GPR.Clone(),
	}
	if p.Dates != nil {
		out.Dates = make([]time.Time, len(p.Dates))
		copy(out.Dates, p.Dates)
	}
	if p.Extra != nil {
		out.Extra = make(map[string]Series, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = v.Clone()
		}
	}
	return out
}

// Validate checks that every present column has one value per row.
func (p *MarketPanel) Validate() error {
	n := p.Len()
	for _, c := range p.RawColumns() {
		if c == ColDate {
			continue
		}
		s, _ := p.Column(c)
		if len(s) != n {
			return fmt.Errorf("column %s has %d values, want %d", c, len(s), n)
		}
	}
	return nil
}

// Observation is one period of raw data as it arrives from upstream feeds.
type Observation struct {
	Date       time.Time          `json:"date"`
	Volatility *float64           `json:"volatility,omitempty"`
	CrisisProb *float64           `json:"crisis_prob,omitempty"`
	Intensity  *float64           `json:"intensity,omitempty"`
	Score      *float64           `json:"score,omitempty"`
	WTI        *float64           `json:"wti,omitempty"`
	GPR        *float64           `json:"gpr,omitempty"`
	Extra      map[string]float64 `json:"extra,omitempty"`
}

// PanelFromObservations builds a panel from date-ordered observations.
// A canonical column is present only if at least one observation carries it.
func PanelFromObservations(obs []Observation) *MarketPanel {
	n := len(obs)
	p := &MarketPanel{Dates: make([]time.Time, n)}
	for i, o := range obs {
		p.Dates[i] = o.Date
		set(&p.Volatility, n, i, o.Volatility)
		set(&p.CrisisProb, n, i, o.CrisisProb)
		set(&p.Intensity, n, i, o.Intensity)
		set(&p.Score, n, i, o.Score)
		set(&p.WTI, n, i, o.WTI)
		set(&p.GPR, n, i, o.GPR)
		for k, v := range o.Extra {
			s, ok := p.Column(Column(k))
			if !ok {
				s = NewSeries(n)
				p.SetColumn(Column(k), s)
			}
			s[i] = v
		}
	}
	return p
}

func set(s *Series, n, i int, v *float64) {
	if v == nil {
		return
	}
	if *s == nil {
		*s = NewSeries(n)
	}
	(*s)[i] = *v
}
