package models

import "time"

// ValidationReport is the outcome of the test-window completeness gate.
type ValidationReport struct {
	Valid     bool           `json:"valid"`
	Missing   []Column       `json:"missing,omitempty"`
	NaNCounts map[Column]int `json:"nan_counts,omitempty"`
	TestRows  int            `json:"test_rows"`
	// Partition is "date" when rows were split on the cutoff, "positional" otherwise.
	Partition string `json:"partition"`
}

// TrainStats holds statistics fitted on training rows only.
type TrainStats struct {
	ScoreMean float64
	Fitted    bool
	TrainRows int
}

type FeatureSetReport struct {
	Set        FeatureSet       `json:"set"`
	Features   []Column         `json:"features"`
	Missing    []Column         `json:"missing,omitempty"`
	Validation ValidationReport `json:"validation"`
}

// PipelineSummary is the cacheable part of a pipeline run; no transport concerns.
type PipelineSummary struct {
	RunID       string                          `json:"run_id"`
	Source      string                          `json:"source"`
	GeneratedAt time.Time                       `json:"generated_at"`
	Cutoff      time.Time                       `json:"cutoff"`
	Rows        int                             `json:"rows"`
	Columns     int                             `json:"columns"`
	ColumnNames []Column                        `json:"column_names"`
	ScoreMean   *float64                        `json:"score_mean"`
	TrainRows   int                             `json:"train_rows"`
	FirstDate   *time.Time                      `json:"first_date,omitempty"`
	LastDate    *time.Time                      `json:"last_date,omitempty"`
	Sets        map[FeatureSet]FeatureSetReport `json:"sets"`
}

// PipelineResult pairs a summary with the engineered panel it describes.
type PipelineResult struct {
	Summary PipelineSummary
	Panel   *EngineeredPanel
}
