package repository

import "fmt"

// Schema returns the idempotent DDL for the panel and feature tables.
func Schema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.market_panel (
    date        Date,
    volatility  Nullable(Float64),
    crisis_prob Nullable(Float64),
    intensity   Nullable(Float64),
    score       Nullable(Float64),
    wti         Nullable(Float64),
    gpr         Nullable(Float64),
    extra       Map(String, Float64),
    inserted_at DateTime64(3) DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(inserted_at)
ORDER BY date`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.engineered_features (
    run_id     String,
    date       Date,
    feature    LowCardinality(String),
    value      Float64,
    created_at DateTime DEFAULT now()
) ENGINE = MergeTree
ORDER BY (run_id, feature, date)
TTL created_at + INTERVAL 90 DAY`, db),
	}
}
