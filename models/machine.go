package models

import "time"

// Machine is the latest known state of one physical machine. Snapshots are
// overwritten in place after each prediction, never versioned or deleted.
type Machine struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	LastHealth         float64   `json:"last_health"`
	FailureProbability float64   `json:"failure_probability"`
	MostCritical       string    `json:"most_critical"`
	LastCheckedAt      time.Time `json:"last_checked_at"`
}

// RecentPrediction is one entry in a machine's bounded prediction log.
type RecentPrediction struct {
	Timestamp          time.Time `json:"timestamp"`
	FailureProbability float64   `json:"failure_probability"`
	CriticalParameter  string    `json:"critical_parameter"`
}

// ForecastPoint is one day of the 30-day forward failure-probability horizon.
type ForecastPoint struct {
	Date               time.Time `json:"date"`
	FailureProbability float64   `json:"failure_probability"`
}

// ParameterRecord is one uploaded sensor reading retained in a machine's
// parameter history.
type ParameterRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Vibration   float64   `json:"vibration"`
	Pressure    float64   `json:"pressure"`
	Humidity    float64   `json:"humidity"`
}

// MonthlyAggregate is the average failure probability for one calendar month.
type MonthlyAggregate struct {
	Month              string  `json:"month"`
	FailureProbability float64 `json:"failure_probability"`
}
