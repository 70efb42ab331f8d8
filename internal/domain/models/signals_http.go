package models

// Requests for the feature HTTP endpoints. Defined in domain for reuse by the CLI.

type FeaturesRequest struct {
	Set string `query:"set" json:"set" default:"rf11" validate:"featureset"`
}

type RegimeRequest struct {
	N int `query:"n" json:"n" default:"12" validate:"gte=1,lte=1000"`
}

// PanelRow is one period as posted by clients. Dates accept any format util.ParseTime knows.
type PanelRow struct {
	Date       string             `json:"date" validate:"required,paneldate"`
	Volatility *float64           `json:"volatility"`
	CrisisProb *float64           `json:"crisis_prob"`
	Intensity  *float64           `json:"intensity"`
	Score      *float64           `json:"score"`
	WTI        *float64           `json:"wti"`
	GPR        *float64           `json:"gpr"`
	Extra      map[string]float64 `json:"extra"`
}

type EngineerRequest struct {
	Cutoff string     `json:"cutoff"`
	Sets   []string   `json:"sets" default:"[\"nprs1\",\"rf11\"]" validate:"dive,featureset"`
	Rows   []PanelRow `json:"rows" validate:"required,min=1,max=5000,dive"`
}

type EngineerResponse struct {
	Rows      int                             `json:"rows"`
	Columns   []Column                        `json:"columns"`
	ScoreMean *float64                        `json:"score_mean"`
	Data      []map[Column]*float64           `json:"data"`
	Dates     []string                        `json:"dates,omitempty"`
	Sets      map[FeatureSet]FeatureSetReport `json:"sets"`
}

// FeaturesResponse describes one feature set of the latest pipeline run.
type FeaturesResponse struct {
	RunID       string           `json:"run_id"`
	GeneratedAt string           `json:"generated_at"`
	Cutoff      string           `json:"cutoff"`
	Rows        int              `json:"rows"`
	Columns     int              `json:"columns"`
	ScoreMean   *float64         `json:"score_mean"`
	Set         FeatureSetReport `json:"set"`
}
