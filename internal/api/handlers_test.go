// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/bgapp-platform/bgapp/internal/audit"
	"github.com/bgapp-platform/bgapp/internal/auth"
	"github.com/bgapp-platform/bgapp/internal/config"
	"github.com/bgapp-platform/bgapp/internal/database"
	"github.com/bgapp-platform/bgapp/internal/models"
	"github.com/bgapp-platform/bgapp/internal/scheduler"
	"github.com/bgapp-platform/bgapp/internal/tasks"
	"github.com/bgapp-platform/bgapp/internal/upstream"
)

type fakeDB struct {
	pingErr   error
	countsErr error
	tablesErr error
	obsErr    error
	predsErr  error
}

func (f *fakeDB) Ping(context.Context) error { return f.pingErr }

func (f *fakeDB) Counts(context.Context) (*database.DashboardCounts, error) {
	if f.countsErr != nil {
		return nil, f.countsErr
	}
	return &database.DashboardCounts{
		Observations:    1200,
		Observations24h: 36,
		StationsActive:  4,
		StationsTotal:   5,
		Species:         12,
		Predictions:     7,
	}, nil
}

func (f *fakeDB) LatestConditions(context.Context) (*models.RealTimeData, error) {
	return &models.RealTimeData{
		SeaTemperatureC: 25.1,
		SalinityPSU:     35.0,
		ChlorophyllMgM3: 0.8,
		SampledAt:       time.Now().UTC(),
		StationID:       "ST-LUA-001",
	}, nil
}

func (f *fakeDB) LatestObservations(_ context.Context, limit int) ([]models.Observation, error) {
	if f.obsErr != nil {
		return nil, f.obsErr
	}
	out := []models.Observation{
		{ID: "obs-1", StationID: "ST-LUA-001", Parameter: "sea_temperature", Value: 25.1, Unit: "celsius"},
		{ID: "obs-2", StationID: "ST-BEN-002", Parameter: "salinity", Value: 35.0, Unit: "psu"},
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDB) RecentPredictions(_ context.Context, limit int) ([]database.PredictionResult, error) {
	if f.predsErr != nil {
		return nil, f.predsErr
	}
	out := []database.PredictionResult{
		{ID: "pred-1", TaskID: "task-1", SpeciesID: "sp-1", Model: "maxent", Suitability: 0.72},
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDB) ListTables(_ context.Context, schema string) ([]models.TableInfo, error) {
	if f.tablesErr != nil {
		return nil, f.tablesErr
	}
	return []models.TableInfo{{Name: "observations", Schema: schema, ColumnCount: 11, EstimatedRows: 1200}}, nil
}

type fakeBuckets struct {
	fallback bool
	breaker  string
}

func (f *fakeBuckets) ListBuckets(context.Context) ([]models.BucketInfo, bool) {
	if f.fallback {
		return []models.BucketInfo{{Name: "bgapp-data"}}, true
	}
	return []models.BucketInfo{{Name: "bgapp-data", Objects: 10}, {Name: "bgapp-models", Objects: 3}}, false
}

func (f *fakeBuckets) BreakerState() string {
	if f.breaker == "" {
		return "closed"
	}
	return f.breaker
}

type fakeConditions struct {
	status models.CopernicusStatus
}

func (f *fakeConditions) FetchConditions(context.Context, models.GeoBox) (*upstream.MarineConditions, bool) {
	return &upstream.MarineConditions{SeaTemperatureC: 24.5, SalinityPSU: 35.2, ChlorophyllMgM3: 0.9, SampledAt: time.Now().UTC()}, true
}

func (f *fakeConditions) Status() models.CopernicusStatus { return f.status }

type fakeManager struct {
	submitted []*tasks.Record
	records   map[string]*tasks.Record
	submitErr error
	healthy   bool
	groupDone func([]*tasks.Record)
}

func newFakeManager() *fakeManager {
	return &fakeManager{records: map[string]*tasks.Record{}, healthy: true}
}

func (f *fakeManager) Submit(_ context.Context, taskType string, queue tasks.Queue, payload json.RawMessage) (*tasks.Record, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	rec := &tasks.Record{
		ID:          "task-1",
		Type:        taskType,
		Queue:       queue,
		Status:      tasks.StatusPending,
		Payload:     payload,
		SubmittedAt: time.Now().UTC(),
	}
	f.submitted = append(f.submitted, rec)
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeManager) SubmitGroup(_ context.Context, taskType string, queue tasks.Queue, payloads []json.RawMessage, onDone func([]*tasks.Record)) (string, []*tasks.Record, error) {
	if f.submitErr != nil {
		return "", nil, f.submitErr
	}
	records := make([]*tasks.Record, 0, len(payloads))
	for i, p := range payloads {
		rec := &tasks.Record{
			ID:          fmt.Sprintf("task-g%d", i+1),
			Type:        taskType,
			Queue:       queue,
			GroupID:     "grp-1",
			Status:      tasks.StatusPending,
			Payload:     p,
			SubmittedAt: time.Now().UTC(),
		}
		f.submitted = append(f.submitted, rec)
		f.records[rec.ID] = rec
		records = append(records, rec)
	}
	f.groupDone = onDone
	return "grp-1", records, nil
}

func (f *fakeManager) Get(id string) (*tasks.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, tasks.ErrTaskNotFound
	}
	return rec, nil
}

func (f *fakeManager) List(filter tasks.ListFilter) ([]*tasks.Record, error) {
	var out []*tasks.Record
	for _, rec := range f.records {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeManager) Stats() ([]*tasks.QueueStats, error) {
	return []*tasks.QueueStats{
		{Queue: tasks.QueueHigh, Workers: 4, Pending: 2, Succeeded: 10},
		{Queue: tasks.QueueLow, Workers: 1, Failed: 1, Dead: 1},
	}, nil
}

func (f *fakeManager) GroupStatus(id string) (tasks.GroupStatus, bool) {
	if id != "grp-1" {
		return tasks.GroupStatus{}, false
	}
	return tasks.GroupStatus{ID: id, Total: 3, Remaining: 1}, true
}

func (f *fakeManager) ListDead(int) ([]*tasks.Record, error) {
	var out []*tasks.Record
	for _, rec := range f.records {
		if rec.Status == tasks.StatusDead {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeManager) Requeue(_ context.Context, id string) (*tasks.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, tasks.ErrTaskNotFound
	}
	if !rec.Status.Terminal() || rec.Status == tasks.StatusSucceeded {
		return nil, errors.New("task is not retryable")
	}
	rec.Status = tasks.StatusPending
	return rec, nil
}

func (f *fakeManager) PurgeDead() (int, error) {
	purged := 0
	for id, rec := range f.records {
		if rec.Status == tasks.StatusDead {
			delete(f.records, id)
			purged++
		}
	}
	return purged, nil
}

func (f *fakeManager) Healthy(context.Context) bool  { return f.healthy }
func (f *fakeManager) PublisherBreakerState() string { return "closed" }

type fakeSched struct{ enabled bool }

func (f *fakeSched) Jobs() []scheduler.JobInfo {
	return []scheduler.JobInfo{{Name: "ingest-observations", TaskType: tasks.TypeIngest, Queue: tasks.QueueHigh}}
}

func (f *fakeSched) Enabled() bool { return f.enabled }

func testHandler(t *testing.T) (*Handler, *fakeManager) {
	t.Helper()
	mgr := newFakeManager()
	cfg := &config.Config{}
	cfg.API.OverviewCacheTTL = time.Minute
	h := NewHandler(HandlerDeps{
		Config:      cfg,
		DB:          &fakeDB{},
		Buckets:     &fakeBuckets{},
		Conditions:  &fakeConditions{status: models.CopernicusStatus{Status: "online"}},
		TaskManager: mgr,
		Scheduler:   &fakeSched{enabled: true},
		Version:     "test",
	})
	return h, mgr
}

// withChiParam runs fn with a request carrying a chi URL parameter, the
// way the router would populate it.
func withChiParam(req *http.Request, key, value string, fn func(*http.Request)) {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	fn(req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx)))
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v (body %s)", err, rec.Body.String())
	}
	return resp
}

func TestHealthHealthy(t *testing.T) {
	h, _ := testHandler(t)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Status != "success" {
		t.Errorf("envelope status = %s", resp.Status)
	}
}

func TestHealthReadyFailsWithoutDatabase(t *testing.T) {
	h, _ := testHandler(t)
	h.db = &fakeDB{pingErr: errors.New("no connection")}

	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/api/health/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestDashboardOverviewCaching(t *testing.T) {
	h, _ := testHandler(t)

	rec := httptest.NewRecorder()
	h.DashboardOverview(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/overview", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp := decodeEnvelope(t, rec); resp.Metadata.Cached {
		t.Error("first request should not be cached")
	}

	rec = httptest.NewRecorder()
	h.DashboardOverview(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/overview", nil))
	if resp := decodeEnvelope(t, rec); !resp.Metadata.Cached {
		t.Error("second request should be served from cache")
	}
}

func TestDashboardOverviewFallbackOnDatabaseError(t *testing.T) {
	h, _ := testHandler(t)
	h.db = &fakeDB{countsErr: errors.New("connection refused")}
	h.cache.Clear()

	rec := httptest.NewRecorder()
	h.DashboardOverview(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/overview", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even when database is down", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if !resp.Metadata.Fallback {
		t.Error("fallback flag should be set when counts query fails")
	}
}

func TestDatabaseTablesFallback(t *testing.T) {
	h, _ := testHandler(t)
	h.db = &fakeDB{tablesErr: errors.New("catalog unavailable")}

	req := httptest.NewRequest(http.MethodGet, "/database/tables/public", nil)
	rec := httptest.NewRecorder()
	withChiParam(req, "schema", "public", func(req *http.Request) {
		h.DatabaseTables(rec, req)
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if !resp.Metadata.Fallback {
		t.Error("fallback flag should be set when catalog query fails")
	}
}

func TestDatabaseTablesRejectsBadSchema(t *testing.T) {
	h, _ := testHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/database/tables/bad;drop", nil)
	rec := httptest.NewRecorder()
	withChiParam(req, "schema", "bad;drop", func(req *http.Request) {
		h.DatabaseTables(rec, req)
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStorageBucketsFallbackFlag(t *testing.T) {
	h, _ := testHandler(t)
	h.buckets = &fakeBuckets{fallback: true}

	rec := httptest.NewRecorder()
	h.StorageBuckets(rec, httptest.NewRequest(http.MethodGet, "/storage/buckets", nil))

	resp := decodeEnvelope(t, rec)
	if !resp.Metadata.Fallback {
		t.Error("fallback flag should propagate from the gateway")
	}
}

func TestSubmitPredictionAccepted(t *testing.T) {
	h, mgr := testHandler(t)

	body, _ := json.Marshal(models.PredictionRequest{SpeciesID: "sp-1", Model: "maxent"})
	req := httptest.NewRequest(http.MethodPost, "/async/ml/predictions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.SubmitPrediction(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/async/tasks/task-1" {
		t.Errorf("Location = %s", loc)
	}
	if len(mgr.submitted) != 1 || mgr.submitted[0].Type != tasks.TypeMLPredict {
		t.Errorf("unexpected submissions: %+v", mgr.submitted)
	}
	if mgr.submitted[0].Queue != tasks.QueueHigh {
		t.Errorf("default queue = %s, want high", mgr.submitted[0].Queue)
	}
}

func TestSubmitPredictionValidation(t *testing.T) {
	h, _ := testHandler(t)

	body := []byte(`{"model":"maxent"}`) // species_id missing
	rec := httptest.NewRecorder()
	h.SubmitPrediction(rec, httptest.NewRequest(http.MethodPost, "/async/ml/predictions", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("unexpected error payload: %+v", resp.Error)
	}
}

func TestSubmitPredictionQueueUnavailable(t *testing.T) {
	h, mgr := testHandler(t)
	mgr.submitErr = errors.New("breaker open")

	body, _ := json.Marshal(models.PredictionRequest{SpeciesID: "sp-1"})
	rec := httptest.NewRecorder()
	h.SubmitPrediction(rec, httptest.NewRequest(http.MethodPost, "/async/ml/predictions", bytes.NewReader(body)))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestSubmitPredictionBatchFansOutPerSpecies(t *testing.T) {
	h, mgr := testHandler(t)

	body, _ := json.Marshal(models.PredictionBatchRequest{
		SpeciesIDs: []string{"sp-1", "sp-2", "sp-3"},
		Model:      "maxent",
		Queue:      "low",
	})
	rec := httptest.NewRecorder()
	h.SubmitPredictionBatch(rec, httptest.NewRequest(http.MethodPost, "/async/ml/predictions/batch", bytes.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/async/groups/grp-1" {
		t.Errorf("Location = %s", loc)
	}
	if len(mgr.submitted) != 3 {
		t.Fatalf("got %d submissions, want one per species", len(mgr.submitted))
	}
	for _, sub := range mgr.submitted {
		if sub.Type != tasks.TypeMLPredict || sub.Queue != tasks.QueueLow {
			t.Errorf("unexpected submission: type=%s queue=%s", sub.Type, sub.Queue)
		}
	}

	// Group completion drops the cached aggregates so prediction counts
	// refresh on the next overview request.
	h.cache.Set(overviewCacheKey, &models.DashboardOverview{})
	if mgr.groupDone == nil {
		t.Fatal("no completion callback registered with the manager")
	}
	mgr.groupDone(nil)
	if _, ok := h.cache.Get(overviewCacheKey); ok {
		t.Error("overview cache should be cleared when the group completes")
	}
}

func TestSubmitPredictionBatchValidation(t *testing.T) {
	h, _ := testHandler(t)

	body := []byte(`{"species_ids":[]}`)
	rec := httptest.NewRecorder()
	h.SubmitPredictionBatch(rec, httptest.NewRequest(http.MethodPost, "/async/ml/predictions/batch", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("unexpected error payload: %+v", resp.Error)
	}
}

func TestListPredictions(t *testing.T) {
	h, _ := testHandler(t)

	rec := httptest.NewRecorder()
	h.ListPredictions(rec, httptest.NewRequest(http.MethodGet, "/async/ml/predictions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data shape %T", resp.Data)
	}
	if data["total"].(float64) != 1 {
		t.Errorf("total = %v, want 1", data["total"])
	}
}

func TestListPredictionsDatabaseError(t *testing.T) {
	h, _ := testHandler(t)
	h.db = &fakeDB{predsErr: errors.New("connection refused")}

	rec := httptest.NewRecorder()
	h.ListPredictions(rec, httptest.NewRequest(http.MethodGet, "/async/ml/predictions", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	h, _ := testHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/async/tasks/nope", nil)
	rec := httptest.NewRecorder()
	withChiParam(req, "id", "nope", func(req *http.Request) {
		h.GetTask(rec, req)
	})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRetryTaskOnlyTerminalFailures(t *testing.T) {
	h, mgr := testHandler(t)
	mgr.records["dead-1"] = &tasks.Record{ID: "dead-1", Type: tasks.TypeMLPredict, Queue: tasks.QueueHigh, Status: tasks.StatusDead}
	mgr.records["ok-1"] = &tasks.Record{ID: "ok-1", Type: tasks.TypeMLPredict, Queue: tasks.QueueHigh, Status: tasks.StatusSucceeded}

	req := httptest.NewRequest(http.MethodPost, "/async/tasks/dead-1/retry", nil)
	rec := httptest.NewRecorder()
	withChiParam(req, "id", "dead-1", func(req *http.Request) {
		h.RetryTask(rec, req)
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("retry dead task: status = %d, want 202", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/async/tasks/ok-1/retry", nil)
	rec = httptest.NewRecorder()
	withChiParam(req, "id", "ok-1", func(req *http.Request) {
		h.RetryTask(rec, req)
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("retry succeeded task: status = %d, want 409", rec.Code)
	}
}

func TestQueueStatsPayload(t *testing.T) {
	h, _ := testHandler(t)

	rec := httptest.NewRecorder()
	h.QueueStats(rec, httptest.NewRequest(http.MethodGet, "/async/queues", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data shape %T", resp.Data)
	}
	if data["publisher_state"] != "closed" {
		t.Errorf("publisher_state = %v", data["publisher_state"])
	}
}

func TestSchedulerJobs(t *testing.T) {
	h, _ := testHandler(t)

	rec := httptest.NewRecorder()
	h.SchedulerJobs(rec, httptest.NewRequest(http.MethodGet, "/api/scheduler/jobs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

type fakeAudit struct {
	recorded []*audit.Event
}

func (f *fakeAudit) Record(event *audit.Event) { f.recorded = append(f.recorded, event) }

func (f *fakeAudit) Query(_ context.Context, filter audit.QueryFilter) ([]audit.Event, error) {
	var out []audit.Event
	for i := len(f.recorded) - 1; i >= 0; i-- {
		out = append(out, *f.recorded[i])
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func TestPurgeDeadTasksIsAudited(t *testing.T) {
	h, mgr := testHandler(t)
	trail := &fakeAudit{}
	h.auditLog = trail
	mgr.records["dead-1"] = &tasks.Record{ID: "dead-1", Status: tasks.StatusDead}

	req := httptest.NewRequest(http.MethodPost, "/async/dlq/purge", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), &auth.Principal{Username: "admin", Roles: []string{"admin"}}))
	rec := httptest.NewRecorder()
	h.PurgeDeadTasks(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(trail.recorded) != 1 {
		t.Fatalf("got %d audit events, want 1", len(trail.recorded))
	}
	if trail.recorded[0].Type != audit.EventDLQPurged || trail.recorded[0].Actor != "admin" {
		t.Errorf("unexpected audit event: %+v", trail.recorded[0])
	}
}

func TestAdminAuditListsEvents(t *testing.T) {
	h, _ := testHandler(t)
	trail := &fakeAudit{}
	trail.Record(&audit.Event{ID: "1", Type: audit.EventLoginSuccess, Actor: "admin", Action: "login"})
	h.auditLog = trail

	rec := httptest.NewRecorder()
	h.AdminAudit(rec, httptest.NewRequest(http.MethodGet, "/api/admin/audit", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data shape %T", resp.Data)
	}
	if data["total"].(float64) != 1 {
		t.Errorf("total = %v, want 1", data["total"])
	}
}

func TestOnTaskTerminalIngestInvalidatesOverviewCache(t *testing.T) {
	h, _ := testHandler(t)

	// Prime the cache.
	rec := httptest.NewRecorder()
	h.DashboardOverview(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/overview", nil))
	rec = httptest.NewRecorder()
	h.DashboardOverview(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/overview", nil))
	if resp := decodeEnvelope(t, rec); !resp.Metadata.Cached {
		t.Fatal("second request should be served from cache")
	}

	// A failed ingest leaves the cache alone; the data did not change.
	h.OnTaskTerminal(&tasks.Record{ID: "ing-1", Type: tasks.TypeIngest, Queue: tasks.QueueHigh, Status: tasks.StatusFailed})
	rec = httptest.NewRecorder()
	h.DashboardOverview(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/overview", nil))
	if resp := decodeEnvelope(t, rec); !resp.Metadata.Cached {
		t.Error("failed ingest should not drop the cache")
	}

	// A completed ingest drops it so the next request sees new data.
	h.OnTaskTerminal(&tasks.Record{ID: "ing-2", Type: tasks.TypeIngest, Queue: tasks.QueueHigh, Status: tasks.StatusSucceeded})
	rec = httptest.NewRecorder()
	h.DashboardOverview(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/overview", nil))
	if resp := decodeEnvelope(t, rec); resp.Metadata.Cached {
		t.Error("completed ingest should drop the cache")
	}
}

func TestOnTaskTerminalDeadTaskWithoutHub(t *testing.T) {
	h, _ := testHandler(t)

	// No hub wired; the listener must not panic on any terminal state.
	h.OnTaskTerminal(&tasks.Record{ID: "t-1", Type: tasks.TypeMLPredict, Queue: tasks.QueueHigh, Status: tasks.StatusDead, Error: "handler crashed"})
	h.OnTaskTerminal(&tasks.Record{ID: "t-2", Type: tasks.TypeReport, Queue: tasks.QueueLow, Status: tasks.StatusSucceeded})
}

func TestDashboardObservations(t *testing.T) {
	h, _ := testHandler(t)

	rec := httptest.NewRecorder()
	h.DashboardObservations(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/observations?limit=1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data shape %T", resp.Data)
	}
	if data["total"].(float64) != 1 {
		t.Errorf("total = %v, want 1 with limit=1", data["total"])
	}
}

func TestDashboardObservationsDatabaseError(t *testing.T) {
	h, _ := testHandler(t)
	h.db = &fakeDB{obsErr: errors.New("connection refused")}

	rec := httptest.NewRecorder()
	h.DashboardObservations(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/observations", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestDashboardStatsAggregatesQueues(t *testing.T) {
	h, _ := testHandler(t)

	rec := httptest.NewRecorder()
	h.DashboardStats(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil))

	resp := decodeEnvelope(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data shape %T", resp.Data)
	}
	if data["tasks_queued"].(float64) != 2 {
		t.Errorf("tasks_queued = %v, want 2", data["tasks_queued"])
	}
	if data["tasks_failed"].(float64) != 2 {
		t.Errorf("tasks_failed = %v, want 2 (failed+dead)", data["tasks_failed"])
	}
}
