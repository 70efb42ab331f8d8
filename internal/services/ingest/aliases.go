package ingest

import (
	"strings"

	"OVIP/internal/domain/models"
)

// columnAliases lists accepted upstream headers per canonical column, in priority order.
var columnAliases = map[models.Column][]string{
	models.ColDate:       {"Date", "date", "DATE", "Month", "month", "Timestamp", "timestamp"},
	models.ColVolatility: {"Volatility", "volatility", "Realized_Vol", "Vol"},
	models.ColCrisisProb: {"Crisis_Prob", "Regime_Prob", "crisis_prob", "regime_prob"},
	models.ColIntensity:  {"Intensity", "intensity", "News_Intensity"},
	models.ColScore:      {"Score", "score", "Sentiment_Score", "Sentiment"},
	models.ColWTI:        {"WTI", "wti", "WTI_Price", "Price"},
	models.ColGPR:        {"gpr", "GPR", "GPR_Index"},
}

var canonicalOrder = append([]models.Column{models.ColDate}, models.RawColumnOrder...)

// Resolution maps header positions to canonical columns.
type Resolution struct {
	Index map[models.Column]int
	// Extra holds headers that are neither canonical nor a used alias.
	Extra map[string]int
	// Aliased records which raw header satisfied a canonical column under another name.
	Aliased map[models.Column]string
}

// ResolveColumns matches raw headers against the alias table. The first alias in
// priority order wins; headers shadowed by a higher-priority alias are dropped.
func ResolveColumns(header []string) Resolution {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}

	res := Resolution{
		Index:   make(map[models.Column]int),
		Extra:   make(map[string]int),
		Aliased: make(map[models.Column]string),
	}
	used := make(map[string]bool)
	for _, c := range canonicalOrder {
		aliases := columnAliases[c]
		for _, a := range aliases {
			if i, ok := pos[a]; ok {
				res.Index[c] = i
				if a != string(c) {
					res.Aliased[c] = a
				}
				break
			}
		}
		for _, a := range aliases {
			used[a] = true
		}
	}

	for h, i := range pos {
		if h == "" || used[h] {
			continue
		}
		res.Extra[h] = i
	}
	return res
}
