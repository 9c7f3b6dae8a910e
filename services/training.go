package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"predictive-maintenance-api/models"
)

const (
	defaultTickInterval = 250 * time.Millisecond
	progressStep        = 25
	forecastDays        = 30
)

// Logical CSV columns and their accepted header spellings. Matching is
// case-insensitive; the first alias found wins.
var columnAliases = map[string][]string{
	"machine_id":  {"machine_id", "machineid", "machine", "unit_id", "id"},
	"timestamp":   {"timestamp", "ts", "time", "date", "record_date"},
	"temperature": {"temperature", "temp", "tmp"},
	"vibration":   {"vibration", "vib", "vibration_level"},
	"pressure":    {"pressure", "press", "psi"},
	"humidity":    {"humidity", "hum", "humid"},
}

// requiredColumns fixes the reporting order for validation errors.
var requiredColumns = []string{"machine_id", "timestamp", "temperature", "vibration", "pressure", "humidity"}

var timestampLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// ValidationError reports a structurally invalid CSV upload.
type ValidationError struct {
	Missing []string
	Header  string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) == 0 {
		return "csv payload must contain a header row and at least one data row"
	}
	return fmt.Sprintf("csv header missing required columns: %s (got header: %q)",
		strings.Join(e.Missing, ", "), e.Header)
}

// TrainingService simulates asynchronous model training. Jobs move through
// queued -> running -> progress ticks -> completed|failed; the aggregation
// that materializes forecasts runs inside the final tick.
type TrainingService struct {
	mu       sync.RWMutex
	jobs     map[string]*models.TrainingJob
	nextID   int
	tick     time.Duration
	registry *Registry
	hub      *Hub
}

func NewTrainingService(registry *Registry, hub *Hub) *TrainingService {
	return &TrainingService{
		jobs:     make(map[string]*models.TrainingJob),
		nextID:   1,
		tick:     defaultTickInterval,
		registry: registry,
		hub:      hub,
	}
}

// SetTickInterval overrides the simulated progression tick.
func (s *TrainingService) SetTickInterval(d time.Duration) {
	s.mu.Lock()
	s.tick = d
	s.mu.Unlock()
}

// Submit validates the CSV synchronously, creates a queued job and spawns
// its simulated progression. The returned job reflects the initial state.
func (s *TrainingService) Submit(data []byte) (models.TrainingJob, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return models.TrainingJob{}, fmt.Errorf("parsing csv: %w", err)
	}
	if len(records) < 2 {
		return models.TrainingJob{}, &ValidationError{}
	}

	columns, missing := resolveColumns(records[0])
	if len(missing) > 0 {
		return models.TrainingJob{}, &ValidationError{
			Missing: missing,
			Header:  strings.Join(records[0], ","),
		}
	}

	s.mu.Lock()
	job := &models.TrainingJob{
		ID:        fmt.Sprintf("job-%d", s.nextID),
		Status:    models.JobStatusQueued,
		Progress:  0,
		StartedAt: time.Now(),
	}
	s.nextID++
	s.jobs[job.ID] = job
	tick := s.tick
	s.mu.Unlock()

	trainingJobsStarted.Inc()
	log.Printf("training job %s accepted: %d data rows", job.ID, len(records)-1)
	go s.run(job.ID, records[1:], columns, tick)

	return *job, nil
}

// Get returns the job record by id.
func (s *TrainingService) Get(id string) (models.TrainingJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.TrainingJob{}, false
	}
	return *job, true
}

// resolveColumns maps each logical column to its position in the header.
func resolveColumns(header []string) (map[string]int, []string) {
	normalized := make(map[string]int, len(header))
	for i, field := range header {
		normalized[strings.ToLower(strings.TrimSpace(field))] = i
	}

	columns := make(map[string]int, len(requiredColumns))
	var missing []string
	for _, logical := range requiredColumns {
		found := false
		for _, alias := range columnAliases[logical] {
			if idx, ok := normalized[alias]; ok {
				columns[logical] = idx
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, logical)
		}
	}
	return columns, missing
}

func (s *TrainingService) run(jobID string, rows [][]string, columns map[string]int, tick time.Duration) {
	time.Sleep(tick)
	s.transition(jobID, models.JobStatusRunning, 0)

	for progress := progressStep; progress < 100; progress += progressStep {
		time.Sleep(tick)
		s.transition(jobID, models.JobStatusRunning, progress)
	}

	time.Sleep(tick)
	if err := s.aggregate(rows, columns); err != nil {
		log.Printf("training job %s failed: %v", jobID, err)
		trainingJobsFailed.Inc()
		s.finish(jobID, models.JobStatusFailed, err.Error())
		return
	}
	trainingJobsCompleted.Inc()
	s.finish(jobID, models.JobStatusCompleted, "")
}

// transition advances a non-terminal job. Terminal jobs are never mutated;
// progress never decreases.
func (s *TrainingService) transition(jobID, status string, progress int) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok || job.Terminal() {
		s.mu.Unlock()
		return
	}
	job.Status = status
	if progress > job.Progress {
		job.Progress = progress
	}
	snapshot := *job
	s.mu.Unlock()

	s.hub.Broadcast(Event{Type: "training_job", Data: snapshot})
}

func (s *TrainingService) finish(jobID, status, errMsg string) {
	now := time.Now()

	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok || job.Terminal() {
		s.mu.Unlock()
		return
	}
	job.Status = status
	job.CompletedAt = &now
	job.Error = errMsg
	if status == models.JobStatusCompleted {
		job.Progress = 100
	}
	snapshot := *job
	s.mu.Unlock()

	log.Printf("training job %s finished: status=%s progress=%d", jobID, snapshot.Status, snapshot.Progress)
	s.hub.Broadcast(Event{Type: "training_job", Data: snapshot})
}

type machineSamples struct {
	temperature []float64
	vibration   []float64
	pressure    []float64
	humidity    []float64
	records     []models.ParameterRecord
}

// aggregate parses all data rows, groups them per machine and materializes
// the 30-day forecasts and parameter history.
func (s *TrainingService) aggregate(rows [][]string, columns map[string]int) error {
	maxIdx := 0
	for _, idx := range columns {
		if idx > maxIdx {
			maxIdx = idx
		}
	}

	groups := make(map[string]*machineSamples)
	var order []string
	for i, row := range rows {
		if len(row) <= maxIdx {
			return fmt.Errorf("row %d has %d fields, expected at least %d", i+1, len(row), maxIdx+1)
		}

		machineID := strings.TrimSpace(row[columns["machine_id"]])
		if machineID == "" {
			return fmt.Errorf("row %d has an empty machine id", i+1)
		}

		group, ok := groups[machineID]
		if !ok {
			group = &machineSamples{}
			groups[machineID] = group
			order = append(order, machineID)
		}

		temperature := parseNumber(row[columns["temperature"]])
		vibration := parseNumber(row[columns["vibration"]])
		pressure := parseNumber(row[columns["pressure"]])
		humidity := parseNumber(row[columns["humidity"]])

		group.temperature = append(group.temperature, temperature)
		group.vibration = append(group.vibration, vibration)
		group.pressure = append(group.pressure, pressure)
		group.humidity = append(group.humidity, humidity)
		group.records = append(group.records, models.ParameterRecord{
			Timestamp:   parseTimestamp(row[columns["timestamp"]]),
			Temperature: temperature,
			Vibration:   vibration,
			Pressure:    pressure,
			Humidity:    humidity,
		})
	}

	now := time.Now()
	for _, machineID := range order {
		group := groups[machineID]
		baseline := baselineProbability(
			stat.Mean(group.vibration, nil),
			stat.Mean(group.temperature, nil),
			stat.Mean(group.pressure, nil),
			stat.Mean(group.humidity, nil),
		)

		points := make([]models.ForecastPoint, 0, forecastDays)
		for day := 1; day <= forecastDays; day++ {
			points = append(points, models.ForecastPoint{
				Date:               now.AddDate(0, 0, day),
				FailureProbability: clamp01(baseline + 0.05*math.Sin(2*math.Pi*float64(day)/float64(forecastDays))),
			})
		}

		s.registry.SetForecast(machineID, points)
		s.registry.AppendParameterHistory(machineID, group.records)
	}

	return nil
}

// baselineProbability combines normalized parameter means with fixed
// weights. Each term is clamped before the weighted sum and the sum is
// clamped again; the double clamping is part of the numeric contract.
func baselineProbability(meanVibration, meanTemperature, meanPressure, meanHumidity float64) float64 {
	return clamp01(
		0.45*clamp01(meanVibration/10) +
			0.25*clamp01(meanTemperature/100) +
			0.2*clamp01(meanPressure/200) +
			0.1*clamp01(meanHumidity/100))
}

// parseNumber reads a numeric CSV field; unparsable values count as 0.
func parseNumber(field string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseTimestamp(field string) time.Time {
	field = strings.TrimSpace(field)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, field); err == nil {
			return t
		}
	}
	return time.Now()
}
