package models

import "time"

type RegimeState string

const (
	RegimeCalm     RegimeState = "CALM"
	RegimeModerate RegimeState = "MODERATE"
	RegimeCrisis   RegimeState = "CRISIS"
)

type RegimePoint struct {
	Date       time.Time   `json:"date"`
	CrisisProb float64     `json:"crisis_prob"`
	State      RegimeState `json:"state"`
}

// RegimeShift marks a row whose state differs from the previous row's.
type RegimeShift struct {
	Date time.Time   `json:"date"`
	From RegimeState `json:"from"`
	To   RegimeState `json:"to"`
}

type Direction string

const (
	DirectionUp      Direction = "UP"
	DirectionDown    Direction = "DOWN"
	DirectionUnknown Direction = "UNKNOWN"
)

type DirectionForecast struct {
	Model         string             `json:"model"`
	Date          time.Time          `json:"date"`
	Direction     Direction          `json:"direction"`
	ProbabilityUp float64            `json:"probability_up"`
	Confidence    float64            `json:"confidence"` // max(p, 1-p)
	Features      map[Column]float64 `json:"features"`
}

type ConfidenceLevel string

const (
	ConfidenceHigh     ConfidenceLevel = "HIGH"
	ConfidenceModerate ConfidenceLevel = "MODERATE"
	ConfidenceLow      ConfidenceLevel = "LOW"
)

type LevelForecast struct {
	Model           string             `json:"model"`
	Date            time.Time          `json:"date"`
	Forecast        float64            `json:"forecast"`
	RangeLow        float64            `json:"range_low"`
	RangeHigh       float64            `json:"range_high"`
	ConfidenceLevel ConfidenceLevel    `json:"confidence_level"`
	Features        map[Column]float64 `json:"features"`
}

// ForecastBundle is the combined output of both models. A model that abstained
// or failed is nil and has an entry in Errors.
type ForecastBundle struct {
	Date      time.Time          `json:"date"`
	Direction *DirectionForecast `json:"direction,omitempty"`
	Level     *LevelForecast     `json:"level,omitempty"`
	Errors    map[string]string  `json:"errors,omitempty"`
}

type AlertLevel string

const (
	AlertCritical AlertLevel = "CRITICAL"
	AlertWarning  AlertLevel = "WARNING"
	AlertNormal   AlertLevel = "NORMAL"
)

type SentimentAlert struct {
	Level   AlertLevel `json:"level"`
	Score   float64    `json:"score"` // 0-10 threat level
	Message string     `json:"message"`
}

// LatestMetrics summarises the last row of the panel for dashboards.
type LatestMetrics struct {
	Date        time.Time       `json:"date"`
	Price       *float64        `json:"price"`
	PriceChange *float64        `json:"price_change_pct"`
	Volatility  *float64        `json:"volatility"`
	CrisisProb  *float64        `json:"crisis_prob"`
	Regime      RegimeState     `json:"regime"`
	Sentiment   *float64        `json:"sentiment"`
	Momentum    *float64        `json:"sentiment_momentum"`
	Alert       *SentimentAlert `json:"alert,omitempty"`
}

// RegimeReport is the regime history of the most recent rows.
type RegimeReport struct {
	Current RegimeState   `json:"current"`
	Points  []RegimePoint `json:"points"`
	Shifts  []RegimeShift `json:"shifts"`
}
