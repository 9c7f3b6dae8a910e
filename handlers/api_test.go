package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"predictive-maintenance-api/config"
	"predictive-maintenance-api/middleware"
	"predictive-maintenance-api/models"
	"predictive-maintenance-api/services"

	"github.com/gin-gonic/gin"
)

type testEnv struct {
	router   *gin.Engine
	registry *services.Registry
	training *services.TrainingService
}

// newTestEnv wires the API exactly like main, against an unreachable model
// endpoint and without Redis.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authService := services.NewAuthService(config.JWTConfig{Secret: "test-secret", ExpiryHours: 8})

	users := services.NewUserStore()
	if err := users.SeedAdmin(authService, "admin@pdm.local", "admin1234"); err != nil {
		t.Fatalf("SeedAdmin failed: %v", err)
	}

	registry := services.NewRegistry()
	hub := services.NewHub()
	cache, _ := services.NewCacheService(config.RedisConfig{})

	predictor := services.NewPredictor(config.ModelConfig{
		URL:        "http://127.0.0.1:1/predict",
		TimeoutSec: 3,
	}, registry, cache, hub)

	training := services.NewTrainingService(registry, hub)
	training.SetTickInterval(time.Millisecond)

	router := gin.New()
	router.GET("/health", NewHealthHandler(predictor).Health)

	authHandler := NewAuthHandler(users, authService)
	router.POST("/api/auth/login", authHandler.Login)
	router.POST("/api/auth/signup", authHandler.Signup)

	machinesHandler := NewMachinesHandler(registry, cache)
	api := router.Group("/api", middleware.RequireAuth(authService))
	api.GET("/machines", machinesHandler.GetMachines)
	api.GET("/machines/:id/history", machinesHandler.GetHistory)
	api.GET("/machines/:id/predictions.csv", machinesHandler.DownloadPredictionsCSV)
	api.POST("/predict", NewPredictHandler(predictor).Predict)
	uploadHandler := NewUploadHandler(training, 5*1024*1024)
	api.POST("/upload", uploadHandler.Upload)
	api.GET("/upload/:id", uploadHandler.GetJob)
	api.GET("/fleet/summary", NewFleetHandler(registry).GetSummary)

	return &testEnv{router: router, registry: registry, training: training}
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	w := e.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "admin@pdm.local",
		"password": "admin1234",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}
	var resp AuthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login returned an empty token")
	}
	return resp.Token
}

func (e *testEnv) upload(token, csv string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "readings.csv")
	fw.Write([]byte(csv))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestLoginAndListSeededMachines(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	w := env.do(http.MethodGet, "/api/machines", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var machines []models.Machine
	if err := json.Unmarshal(w.Body.Bytes(), &machines); err != nil {
		t.Fatalf("decoding machines: %v", err)
	}
	if len(machines) != 3 {
		t.Fatalf("machine count = %d, want 3", len(machines))
	}
	for _, m := range machines {
		if m.LastHealth != 1-m.FailureProbability {
			t.Errorf("machine %s: LastHealth = %v, want %v", m.ID, m.LastHealth, 1-m.FailureProbability)
		}
	}
	if machines[0].ID != "M-001" || machines[0].Name != "CNC Lathe 01" {
		t.Errorf("first machine = %s/%s, want seeded M-001", machines[0].ID, machines[0].Name)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/api/machines",
		"/api/machines/M-001/history",
		"/api/fleet/summary",
		"/api/upload/job-1",
	} {
		if w := env.do(http.MethodGet, path, "", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token: status = %d, want 401", path, w.Code)
		}
	}

	if w := env.do(http.MethodGet, "/api/machines", "not.a.token", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", w.Code)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "admin@pdm.local",
		"password": "wrong-password",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSignup(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]string{
		"email":    "tech@plant.example",
		"password": "longenough",
		"name":     "Line Tech",
	}
	w := env.do(http.MethodPost, "/api/auth/signup", "", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %s", w.Code, w.Body.String())
	}

	var resp AuthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Token == "" {
		t.Error("signup should return a token")
	}
	if resp.User.Role != "user" {
		t.Errorf("signup role = %q, want user", resp.User.Role)
	}

	if w := env.do(http.MethodPost, "/api/auth/signup", "", body); w.Code != http.StatusConflict {
		t.Errorf("duplicate signup status = %d, want 409", w.Code)
	}

	short := map[string]string{"email": "x@y.z", "password": "short"}
	if w := env.do(http.MethodPost, "/api/auth/signup", "", short); w.Code != http.StatusBadRequest {
		t.Errorf("short password status = %d, want 400", w.Code)
	}
}

func TestPredictFallbackEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	w := env.do(http.MethodPost, "/api/predict", token, map[string]interface{}{
		"machine_id": "M-001",
		"features":   map[string]float64{"vibration": 0.8, "temperature": 0.2, "pressure": 0.1},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("predict status = %d, body %s", w.Code, w.Body.String())
	}

	var result models.PredictionResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if !strings.Contains(strings.ToLower(result.Explanation), "fallback") {
		t.Errorf("explanation %q should indicate fallback use", result.Explanation)
	}
	if result.FailureProbability < 0 || result.FailureProbability > 1 {
		t.Errorf("probability %v out of [0,1]", result.FailureProbability)
	}

	machine, _ := env.registry.Get("M-001")
	if machine.LastHealth != 1-result.FailureProbability {
		t.Errorf("snapshot health = %v, want %v", machine.LastHealth, 1-result.FailureProbability)
	}
}

func TestPredictValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	w := env.do(http.MethodPost, "/api/predict", token, map[string]interface{}{
		"features": map[string]float64{"vibration": 0.5},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing machine_id status = %d, want 400", w.Code)
	}
}

func TestUploadAndPollJob(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	csv := "machine_id,timestamp,temperature,vibration,pressure,humidity\nM-001,2026-01-01 10:00:00,60,2.5,100,40\n"
	w := env.upload(token, csv)
	if w.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d, body %s", w.Code, w.Body.String())
	}

	var resp UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding upload response: %v", err)
	}
	if resp.TrainingJobID == "" {
		t.Fatal("upload should return a job id")
	}
	if resp.Status != "queued" {
		t.Errorf("initial status = %q, want queued", resp.Status)
	}

	deadline := time.Now().Add(2 * time.Second)
	var job models.TrainingJob
	for time.Now().Before(deadline) {
		pw := env.do(http.MethodGet, "/api/upload/"+resp.TrainingJobID, token, nil)
		if pw.Code != http.StatusOK {
			t.Fatalf("poll status = %d", pw.Code)
		}
		json.Unmarshal(pw.Body.Bytes(), &job)
		if job.Terminal() {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if job.Status != "completed" {
		t.Fatalf("job status = %q (error %q), want completed", job.Status, job.Error)
	}

	if forecast := env.registry.Forecast("M-001"); len(forecast) != 30 {
		t.Errorf("forecast length = %d, want 30", len(forecast))
	}
}

func TestUploadMissingColumn(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	csv := "machine_id,timestamp,temperature,vibration,humidity\nM-001,2026-01-01,60,2,40\n"
	w := env.upload(token, csv)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "pressure") {
		t.Errorf("body %q should name the missing pressure column", w.Body.String())
	}
}

func TestUploadJobNotFound(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	if w := env.do(http.MethodGet, "/api/upload/job-999", token, nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestMachineHistory(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	w := env.do(http.MethodGet, "/api/machines/M-001/history", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp MachineHistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding history: %v", err)
	}
	if resp.MachineID != "M-001" {
		t.Errorf("machine_id = %q", resp.MachineID)
	}
	if len(resp.Monthly) != 12 {
		t.Errorf("monthly length = %d, want 12", len(resp.Monthly))
	}

	if w := env.do(http.MethodGet, "/api/machines/M-999/history", token, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown machine status = %d, want 404", w.Code)
	}
}

func TestPredictionsCSVDownload(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	// One fallback prediction so the file has a recent row.
	env.do(http.MethodPost, "/api/predict", token, map[string]interface{}{"machine_id": "M-001"})

	w := env.do(http.MethodGet, "/api/machines/M-001/predictions.csv", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "predictions_M-001.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if lines[0] != "date,failure_probability" {
		t.Errorf("header line = %q", lines[0])
	}
	if len(lines) < 2 {
		t.Error("csv should contain at least one data row")
	}

	if w := env.do(http.MethodGet, "/api/machines/M-999/predictions.csv", token, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown machine status = %d, want 404", w.Code)
	}
}

func TestFleetSummary(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	w := env.do(http.MethodGet, "/api/fleet/summary", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var summary FleetSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if summary.TotalMachines != 3 {
		t.Errorf("total = %d, want 3", summary.TotalMachines)
	}
	// All seeded machines sit below the high-risk threshold.
	if summary.HighRiskMachines != 0 {
		t.Errorf("high risk = %d, want 0", summary.HighRiskMachines)
	}
	if summary.EstimatedRepairBudget != 3*costLowRiskRepair {
		t.Errorf("budget = %d, want %d", summary.EstimatedRepairBudget, 3*costLowRiskRepair)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Status         string `json:"status"`
		ModelReachable bool   `json:"model_reachable"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.ModelReachable {
		t.Error("model should be unreachable in tests")
	}
}
