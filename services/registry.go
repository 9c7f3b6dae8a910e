package services

import (
	"math"
	"sync"
	"time"

	"predictive-maintenance-api/models"
)

const (
	recentPredictionCap = 10
	paramHistoryCap     = 100
)

// Registry owns every piece of per-machine state: snapshots, the bounded
// recent-prediction logs, 30-day forecasts and parameter history. All state
// is process-wide and lost on restart except the seed.
type Registry struct {
	mu        sync.RWMutex
	machines  map[string]*models.Machine
	order     []string
	recent    map[string][]models.RecentPrediction
	forecasts map[string][]models.ForecastPoint
	history   map[string][]models.ParameterRecord
}

func NewRegistry() *Registry {
	r := &Registry{
		machines:  make(map[string]*models.Machine),
		recent:    make(map[string][]models.RecentPrediction),
		forecasts: make(map[string][]models.ForecastPoint),
		history:   make(map[string][]models.ParameterRecord),
	}
	r.seed()
	return r
}

func (r *Registry) seed() {
	now := time.Now()
	for _, m := range []models.Machine{
		{ID: "M-001", Name: "CNC Lathe 01", FailureProbability: 0.12, MostCritical: "vibration"},
		{ID: "M-002", Name: "Hydraulic Press 02", FailureProbability: 0.27, MostCritical: "pressure"},
		{ID: "M-003", Name: "Conveyor Motor 03", FailureProbability: 0.08, MostCritical: "temperature"},
	} {
		m.LastHealth = 1 - m.FailureProbability
		m.LastCheckedAt = now
		machine := m
		r.machines[m.ID] = &machine
		r.order = append(r.order, m.ID)
	}
}

// List returns all machine snapshots in seed order.
func (r *Registry) List() []models.Machine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Machine, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.machines[id])
	}
	return out
}

// Get returns one machine snapshot by id.
func (r *Registry) Get(id string) (models.Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.machines[id]
	if !ok {
		return models.Machine{}, false
	}
	return *m, true
}

// ApplyPrediction overwrites the target snapshot with the outcome of a
// prediction. LastHealth is derived from the failure probability here so the
// two fields can never drift apart. Unknown machine ids are a no-op.
func (r *Registry) ApplyPrediction(res models.PredictionResult, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.machines[res.MachineID]
	if !ok {
		return false
	}
	m.FailureProbability = res.FailureProbability
	m.LastHealth = 1 - res.FailureProbability
	m.MostCritical = res.CriticalParameter
	m.LastCheckedAt = at
	return true
}

// RecordPrediction prepends an entry to the machine's prediction log,
// evicting the oldest entry past the cap. The log is kept even for machine
// ids the registry has never seen.
func (r *Registry) RecordPrediction(machineID string, entry models.RecentPrediction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := append([]models.RecentPrediction{entry}, r.recent[machineID]...)
	if len(log) > recentPredictionCap {
		log = log[:recentPredictionCap]
	}
	r.recent[machineID] = log
}

// RecentPredictions returns the machine's prediction log, newest-first.
func (r *Registry) RecentPredictions(machineID string) []models.RecentPrediction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.RecentPrediction, len(r.recent[machineID]))
	copy(out, r.recent[machineID])
	return out
}

// SetForecast replaces the machine's forecast set wholesale.
func (r *Registry) SetForecast(machineID string, points []models.ForecastPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.forecasts[machineID] = points
}

// Forecast returns the machine's current 30-day forecast, oldest-first.
func (r *Registry) Forecast(machineID string) []models.ForecastPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ForecastPoint, len(r.forecasts[machineID]))
	copy(out, r.forecasts[machineID])
	return out
}

// AppendParameterHistory appends uploaded readings to the machine's history,
// keeping only the most recent entries.
func (r *Registry) AppendParameterHistory(machineID string, rows []models.ParameterRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hist := append(r.history[machineID], rows...)
	if len(hist) > paramHistoryCap {
		hist = hist[len(hist)-paramHistoryCap:]
	}
	r.history[machineID] = hist
}

// ParameterHistory returns up to limit history records, newest-first.
func (r *Registry) ParameterHistory(machineID string, limit int) []models.ParameterRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hist := r.history[machineID]
	out := make([]models.ParameterRecord, 0, limit)
	for i := len(hist) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, hist[i])
	}
	return out
}

// MonthlyAggregates returns one aggregate per calendar month for the last
// `months` months, oldest-first. Months with recorded predictions average
// them; empty months carry the snapshot probability with a small seasonal
// term so the trend chart is never blank.
func (r *Registry) MonthlyAggregates(machineID string, months int, now time.Time) []models.MonthlyAggregate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	base := 0.0
	if m, ok := r.machines[machineID]; ok {
		base = m.FailureProbability
	}

	out := make([]models.MonthlyAggregate, 0, months)
	for i := months - 1; i >= 0; i-- {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -i, 0)
		label := monthStart.Format("2006-01")

		var sum float64
		var n int
		for _, p := range r.recent[machineID] {
			if p.Timestamp.Format("2006-01") == label {
				sum += p.FailureProbability
				n++
			}
		}

		prob := base + 0.03*math.Sin(2*math.Pi*float64(monthStart.Month())/12)
		if n > 0 {
			prob = sum / float64(n)
		}
		out = append(out, models.MonthlyAggregate{
			Month:              label,
			FailureProbability: clamp01(prob),
		})
	}
	return out
}
