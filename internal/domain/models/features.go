package models

import (
	"fmt"
	"strings"
)

// Column is a canonical panel column name.
type Column string

// Input columns.
const (
	ColDate       Column = "Date"
	ColVolatility Column = "Volatility"
	ColCrisisProb Column = "Crisis_Prob"
	ColIntensity  Column = "Intensity"
	ColScore      Column = "Score"
	ColWTI        Column = "WTI"
	ColGPR        Column = "gpr"
)

// Engineered columns. Every feature at row t depends only on rows before t.
const (
	ColLVol          Column = "L_Vol"
	ColLRegime       Column = "L_Regime"
	ColLInten        Column = "L_Inten"
	ColLWTIRet       Column = "L_WTI_Ret"
	ColLGPR          Column = "L_GPR"
	ColRegimeLabel   Column = "Regime_Label"
	ColLMSVolSafe    Column = "L_MS_Vol_Safe"
	ColLAccel        Column = "L_Accel"
	ColLVolStd       Column = "L_Vol_Std"
	ColLVolMA3       Column = "L_Vol_MA3"
	ColLVolMA12      Column = "L_Vol_MA12"
	ColLNewsShk      Column = "L_News_Shk"
	ColScoreCentered Column = "Score_Centered"
	ColLStateSSafe   Column = "L_State_S_Safe"
	ColLCrowdSafe    Column = "L_Crowd_Safe"

	// ColVolDirection is the training target. It uses current-period volatility
	// and never appears in a feature set.
	ColVolDirection Column = "Vol_Direction"
)

// RawColumnOrder is the canonical order of the fixed input columns.
var RawColumnOrder = []Column{ColVolatility, ColCrisisProb, ColIntensity, ColScore, ColWTI, ColGPR}

// DerivedColumnOrder is the order in which engineered columns are appended.
var DerivedColumnOrder = []Column{
	ColLVol, ColLRegime, ColLInten, ColLWTIRet, ColLGPR,
	ColRegimeLabel, ColLMSVolSafe,
	ColLAccel, ColLVolStd, ColLVolMA3, ColLVolMA12,
	ColLNewsShk, ColScoreCentered,
	ColLStateSSafe, ColLCrowdSafe,
	ColVolDirection,
}

// FeatureSet names a downstream model's input list.
type FeatureSet string

const (
	FeatureSetNPRS1 FeatureSet = "nprs1"
	FeatureSetRF11  FeatureSet = "rf11"
)

var (
	nprs1Features = []Column{ColLVol, ColLRegime, ColLInten, ColLGPR, ColLAccel}
	rf11Features  = []Column{
		ColLVol, ColLRegime, ColLInten, ColLWTIRet, ColLGPR, ColLAccel,
		ColLNewsShk, ColLMSVolSafe, ColLStateSSafe, ColLCrowdSafe, ColLVolStd,
	}
)

// ParseFeatureSet accepts "nprs1", "NPRS-1", "rf11", "RF-11" and similar spellings.
func ParseFeatureSet(s string) (FeatureSet, error) {
	norm := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	switch norm {
	case "nprs1":
		return FeatureSetNPRS1, nil
	case "rf11":
		return FeatureSetRF11, nil
	}
	return "", fmt.Errorf("unknown feature set %q", s)
}

// Canonical returns a copy of the ordered feature list, or nil for an unknown set.
func (f FeatureSet) Canonical() []Column {
	var src []Column
	switch f {
	case FeatureSetNPRS1:
		src = nprs1Features
	case FeatureSetRF11:
		src = rf11Features
	default:
		return nil
	}
	out := make([]Column, len(src))
	copy(out, src)
	return out
}

// AllFeatureSets lists the known sets in display order.
func AllFeatureSets() []FeatureSet { return []FeatureSet{FeatureSetNPRS1, FeatureSetRF11} }

// EngineeredPanel is a private copy of the input panel with engineered columns.
// A nil field means the stage producing it was skipped.
type EngineeredPanel struct {
	MarketPanel

	LVol    Series
	LRegime Series
	LInten  Series
	LWTIRet Series
	LGPR    Series

	RegimeLabel Series
	LMSVolSafe  Series

	LAccel   Series
	LVolStd  Series
	LVolMA3  Series
	LVolMA12 Series

	LNewsShk      Series
	ScoreCentered Series

	LStateSSafe Series
	LCrowdSafe  Series

	VolDirection Series
}

// NewEngineeredPanel wraps a deep copy of p.
func NewEngineeredPanel(p *MarketPanel) *EngineeredPanel {
	return &EngineeredPanel{MarketPanel: *p.Clone()}
}

func (p *EngineeredPanel) derived(c Column) (*Series, bool) {
	switch c {
	case ColLVol:
		return &p.LVol, true
	case ColLRegime:
		return &p.LRegime, true
	case ColLInten:
		return &p.LInten, true
	case ColLWTIRet:
		return &p.LWTIRet, true
	case ColLGPR:
		return &p.LGPR, true
	case ColRegimeLabel:
		return &p.RegimeLabel, true
	case ColLMSVolSafe:
		return &p.LMSVolSafe, true
	case ColLAccel:
		return &p.LAccel, true
	case ColLVolStd:
		return &p.LVolStd, true
	case ColLVolMA3:
		return &p.LVolMA3, true
	case ColLVolMA12:
		return &p.LVolMA12, true
	case ColLNewsShk:
		return &p.LNewsShk, true
	case ColScoreCentered:
		return &p.ScoreCentered, true
	case ColLStateSSafe:
		return &p.LStateSSafe, true
	case ColLCrowdSafe:
		return &p.LCrowdSafe, true
	case ColVolDirection:
		return &p.VolDirection, true
	}
	return nil, false
}

// Column looks up any numeric column, raw or engineered.
func (p *EngineeredPanel) Column(c Column) (Series, bool) {
	if ptr, ok := p.derived(c); ok {
		return *ptr, *ptr != nil
	}
	return p.MarketPanel.Column(c)
}

// HasColumn also reports the Date column.
func (p *EngineeredPanel) HasColumn(c Column) bool {
	if c == ColDate {
		return p.HasDates()
	}
	_, ok := p.Column(c)
	return ok
}

// SetColumn assigns a raw or engineered column.
func (p *EngineeredPanel) SetColumn(c Column, s Series) {
	if ptr, ok := p.derived(c); ok {
		*ptr = s
		return
	}
	p.MarketPanel.SetColumn(c, s)
}

// Columns lists present columns: input columns first, engineered ones after, in
// the order the stages create them.
func (p *EngineeredPanel) Columns() []Column {
	cols := p.RawColumns()
	for _, c := range DerivedColumnOrder {
		if ptr, _ := p.derived(c); *ptr != nil {
			cols = append(cols, c)
		}
	}
	return cols
}

// Shape returns rows and columns.
func (p *EngineeredPanel) Shape() (int, int) {
	return p.Len(), len(p.Columns())
}

// Row returns the values of the given columns at row i. Missing values and absent
// columns are nil.
func (p *EngineeredPanel) Row(i int, cols []Column) map[Column]*float64 {
	out := make(map[Column]*float64, len(cols))
	for _, c := range cols {
		s, ok := p.Column(c)
		if !ok {
			out[c] = nil
			continue
		}
		out[c] = s.Nullable(i)
	}
	return out
}
