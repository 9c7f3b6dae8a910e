package models

import "time"

// MaintenanceWindow is the recommended service interval for a machine.
// Start is always on or before End.
type MaintenanceWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// PredictionResult is the output of one prediction attempt. It is fully
// populated either from the external model response or from the local
// fallback heuristic, never partially from both.
type PredictionResult struct {
	MachineID          string             `json:"machine_id"`
	FailureProbability float64            `json:"failure_probability"`
	HealthScores       map[string]float64 `json:"health_scores"`
	CriticalParameter  string             `json:"critical_parameter"`
	MaintenanceWindow  MaintenanceWindow  `json:"recommended_maintenance_window"`
	Explanation        string             `json:"explanation"`
}
