package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/zulandar/meetbot/internal/bot"
	"github.com/zulandar/meetbot/internal/db"
	"github.com/zulandar/meetbot/internal/metrics"
	"github.com/zulandar/meetbot/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeLive struct {
	sessions []bot.Snapshot
}

func (f *fakeLive) Active() []bot.Snapshot { return f.sessions }

func testStore(t *testing.T) *store.Store {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := gormDB.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(gormDB)
}

// seed writes one finished and one in-progress meeting.
func seed(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	s.Begin(ctx, bot.Record{MeetingID: "old-meet-ing", RunID: "r1", URL: "https://meet.google.com/old-meet-ing", StartTime: base})
	s.Finish(ctx, "old-meet-ing", "r1", bot.Final{
		Status:     bot.StatusCompleted,
		Transcript: "[2026-03-02T09:00:01.000Z] hello\n[2026-03-02T09:00:03.000Z] bye",
		ExitReason: bot.ReasonEveryoneLeft,
		EndTime:    base.Add(time.Hour),
	})
	s.Begin(ctx, bot.Record{MeetingID: "new-meet-ing", RunID: "r2", URL: "https://meet.google.com/new-meet-ing", StartTime: base.Add(2 * time.Hour)})
	s.MarkInProgress(ctx, "new-meet-ing", "r2", base.Add(2*time.Hour))
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStart_NilRecords(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	if err == nil {
		t.Fatal("expected error for nil records")
	}
	if !strings.Contains(err.Error(), "records are required") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestHealthz(t *testing.T) {
	s := testStore(t)
	seed(t, s)
	router := NewRouter(StartOpts{Records: s, Live: &fakeLive{sessions: []bot.Snapshot{{MeetingID: "new-meet-ing"}}}, Log: zerolog.Nop()})

	w := get(t, router, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Status  string           `json:"status"`
		Live    int              `json:"live_sessions"`
		Records map[string]int64 `json:"records"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Live != 1 {
		t.Errorf("body = %+v", body)
	}
	if body.Records["completed"] != 1 || body.Records["in_progress"] != 1 {
		t.Errorf("records = %v", body.Records)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.SessionStarted()

	router := NewRouter(StartOpts{Records: testStore(t), Gatherer: reg, Log: zerolog.Nop()})
	w := get(t, router, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "meetbot_active_sessions 1") {
		t.Errorf("metrics body missing gauge:\n%s", w.Body.String())
	}
}

func TestMetricsEndpoint_NotMountedWithoutGatherer(t *testing.T) {
	router := NewRouter(StartOpts{Records: testStore(t), Log: zerolog.Nop()})
	if w := get(t, router, "/metrics"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestSessionList(t *testing.T) {
	s := testStore(t)
	seed(t, s)
	live := &fakeLive{sessions: []bot.Snapshot{
		{MeetingID: "new-meet-ing", RunID: "r2", Status: bot.StatusInProgress, Captions: 7, Loops: []string{"capture", "persist"}},
		{MeetingID: "fresh-meet", URL: "https://meet.google.com/fresh-meet", Status: bot.StatusStarting, StartTime: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)},
	}}
	router := NewRouter(StartOpts{Records: s, Live: live, Log: zerolog.Nop()})

	w := get(t, router, "/api/sessions")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Sessions []SessionRow `json:"sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Sessions) != 3 {
		t.Fatalf("len = %d, want 3", len(body.Sessions))
	}
	order := []string{body.Sessions[0].MeetingID, body.Sessions[1].MeetingID, body.Sessions[2].MeetingID}
	if strings.Join(order, ",") != "fresh-meet,new-meet-ing,old-meet-ing" {
		t.Errorf("order = %v", order)
	}
	mid := body.Sessions[1]
	if !mid.Live || mid.Captions != 7 || len(mid.Loops) != 2 {
		t.Errorf("live overlay = %+v", mid)
	}
	if body.Sessions[2].Live || body.Sessions[2].ExitReason != bot.ReasonEveryoneLeft {
		t.Errorf("stored row = %+v", body.Sessions[2])
	}
}

func TestSessionList_Filters(t *testing.T) {
	s := testStore(t)
	seed(t, s)
	router := NewRouter(StartOpts{Records: s, Log: zerolog.Nop()})

	w := get(t, router, "/api/sessions?status=completed")
	var body struct {
		Sessions []SessionRow `json:"sessions"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if len(body.Sessions) != 1 || body.Sessions[0].MeetingID != "old-meet-ing" {
		t.Errorf("sessions = %+v", body.Sessions)
	}

	if w := get(t, router, "/api/sessions?limit=abc"); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}
}

func TestSessionDetail(t *testing.T) {
	s := testStore(t)
	seed(t, s)
	router := NewRouter(StartOpts{Records: s, Log: zerolog.Nop()})

	w := get(t, router, "/api/sessions/old-meet-ing")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var row SessionRow
	json.Unmarshal(w.Body.Bytes(), &row)
	if row.Status != "completed" || row.EndTime == nil {
		t.Errorf("row = %+v", row)
	}

	if w := get(t, router, "/api/sessions/missing"); w.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", w.Code)
	}
}

func TestSessionDetail_LiveOnly(t *testing.T) {
	live := &fakeLive{sessions: []bot.Snapshot{{MeetingID: "fresh-meet", Status: bot.StatusStarting}}}
	router := NewRouter(StartOpts{Records: testStore(t), Live: live, Log: zerolog.Nop()})

	w := get(t, router, "/api/sessions/fresh-meet")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var row SessionRow
	json.Unmarshal(w.Body.Bytes(), &row)
	if !row.Live || row.Status != "starting" {
		t.Errorf("row = %+v", row)
	}
}

func TestTranscript(t *testing.T) {
	s := testStore(t)
	seed(t, s)
	router := NewRouter(StartOpts{Records: s, Log: zerolog.Nop()})

	w := get(t, router, "/api/sessions/old-meet-ing/transcript")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := w.Header().Get("X-Meeting-Status"); got != "completed" {
		t.Errorf("X-Meeting-Status = %q", got)
	}
	if !strings.HasSuffix(w.Body.String(), "] bye") {
		t.Errorf("body = %q", w.Body.String())
	}

	if w := get(t, router, "/api/sessions/missing/transcript"); w.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", w.Code)
	}
}

func TestNoTriggerRoute(t *testing.T) {
	router := NewRouter(StartOpts{Records: testStore(t), Log: zerolog.Nop()})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"url":"https://meet.google.com/abc-defg-hij"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusOK || w.Code == http.StatusCreated {
		t.Errorf("POST /api/sessions = %d, want no trigger route", w.Code)
	}
}

func TestSSE_NoLiveSessions(t *testing.T) {
	router := NewRouter(StartOpts{Records: testStore(t), Log: zerolog.Nop()})
	w := get(t, router, "/api/events")
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "event: connected") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestSSE_StreamsSessions(t *testing.T) {
	live := &fakeLive{sessions: []bot.Snapshot{{MeetingID: "abc-defg-hij", Status: bot.StatusInProgress}}}
	router := gin.New()
	router.GET("/events", handleSSE(live, 10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	body := w.Body.String()
	if strings.Count(body, "event: sessions") != 1 {
		t.Errorf("want exactly one sessions event for an unchanged list:\n%s", body)
	}
	if !strings.Contains(body, `"meeting_id":"abc-defg-hij"`) {
		t.Errorf("sessions payload missing meeting:\n%s", body)
	}
}
