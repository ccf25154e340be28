package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/huangdanqi/pawprint/internal/agents"
	"github.com/huangdanqi/pawprint/internal/config"
	"github.com/huangdanqi/pawprint/internal/diary"
	"github.com/huangdanqi/pawprint/internal/event"
	"github.com/huangdanqi/pawprint/internal/eventctx"
	"github.com/huangdanqi/pawprint/internal/events"
	"github.com/huangdanqi/pawprint/internal/llm"
	"github.com/huangdanqi/pawprint/internal/pipeline"
	"github.com/huangdanqi/pawprint/internal/quota"
	"github.com/huangdanqi/pawprint/internal/recovery"
	"github.com/huangdanqi/pawprint/internal/router"

	_ "modernc.org/sqlite"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubGateway satisfies agents.Generator with a canned response.
type stubGateway struct {
	text string
}

func (g *stubGateway) Generate(context.Context, llm.Request) (string, string, error) {
	return g.text, "ollama", nil
}

// testServer wires a real pipeline over a stub gateway.
func testServer(t *testing.T, gwText string) (*Server, *diary.Store) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store, err := diary.NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	mgr, err := quota.NewManager(5, 5, nil, nil, quietLogger())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	tax := event.Default()

	deps := agents.Deps{
		Reader:  eventctx.NewSyntheticReader(config.OwnerConfig{Name: "Mia", City: "Hangzhou"}),
		Gateway: &stubGateway{text: gwText},
		Logger:  quietLogger(),
		Options: agents.GenOptions{MaxTokens: 64, Timeout: time.Second},
	}
	all := []agents.Agent{
		agents.NewWeatherAgent(deps),
		agents.NewHolidayAgent(deps, []config.HolidayConfig{{Name: "New Year", Month: 1, Day: 1}}),
		agents.NewFriendAgent(deps),
		agents.NewInteractiveAgent(deps),
		agents.NewNeglectAgent(deps),
		agents.NewSensorAgent(deps),
	}
	rt, err := router.New(tax, all, quietLogger())
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	p := pipeline.New(pipeline.Config{Workers: 1, QueueSize: 8, ShutdownGrace: time.Second}, pipeline.Deps{
		Store:    store,
		Checker:  quota.NewChecker(tax, mgr, quietLogger()),
		Quota:    mgr,
		Router:   rt,
		Taxonomy: tax,
		Logger:   quietLogger(),
	})

	srv := NewServer("", 0, Deps{
		Pipeline: p,
		Store:    store,
		Quota:    mgr,
		Router:   rt,
		Statuses: recovery.NewStatusRegistry(nil),
		Bus:      events.New(),
		Pairing:  &PairingInfo{InstanceID: "inst-1", DeviceName: "momo", APIAddr: "http://10.0.0.2:8390"},
		Logger:   quietLogger(),
	})
	return srv, store
}

func postEvent(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTriggerEvent_WritesEntry(t *testing.T) {
	srv, store := testServer(t, `{"title": "Sunny", "content": "A good day.", "emotion_tags": ["happy_joyful"]}`)
	h := srv.Handler()

	rec := postEvent(t, h, `{"event_name": "favorite_weather", "user_id": "user-1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var entry diary.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.Title != "Sunny" {
		t.Errorf("title = %q", entry.Title)
	}
	if _, err := store.Get(entry.EntryID); err != nil {
		t.Errorf("entry not stored: %v", err)
	}
}

func TestTriggerEvent_SkippedDuplicate(t *testing.T) {
	srv, _ := testServer(t, `{"title": "Hi", "content": "Day.", "emotion_tags": ["calm"]}`)
	h := srv.Handler()

	if rec := postEvent(t, h, `{"event_name": "made_new_friend", "user_id": "user-1"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("first event status = %d", rec.Code)
	}

	rec := postEvent(t, h, `{"event_name": "made_new_friend", "user_id": "user-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate status = %d, body %s", rec.Code, rec.Body)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["skipped"] != true {
		t.Errorf("body = %v, want skipped true", body)
	}
}

func TestTriggerEvent_Rejections(t *testing.T) {
	srv, _ := testServer(t, `{}`)
	h := srv.Handler()

	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"event_name": `, http.StatusBadRequest},
		{"missing user", `{"event_name": "favorite_weather"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := postEvent(t, h, tc.body); rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

// Unknown event names are ineligible, not errors: the trigger endpoint
// answers skipped, same as a quota miss.
func TestTriggerEvent_UnknownNameSkipped(t *testing.T) {
	srv, _ := testServer(t, `{}`)
	h := srv.Handler()

	rec := postEvent(t, h, `{"event_name": "meteor_shower", "user_id": "u"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["skipped"] != true {
		t.Errorf("body = %v, want skipped:true", body)
	}
}

func TestDiaryList_FiltersByDate(t *testing.T) {
	srv, store := testServer(t, `{}`)
	h := srv.Handler()

	yesterday := time.Now().Add(-24 * time.Hour)
	for i, ts := range []time.Time{time.Now(), yesterday} {
		entry := &diary.Entry{
			EntryID:     diary.NewEntryID(ts),
			UserID:      "user-1",
			Timestamp:   ts,
			EventType:   "weather",
			EventName:   "favorite_weather",
			Title:       "Entry",
			Content:     "Words.",
			EmotionTags: []diary.EmotionTag{diary.EmotionCalm},
			AgentType:   "weather_agent",
			Provider:    "ollama",
		}
		if err := store.Insert(entry); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/diary/user-1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Count   int            `json:"count"`
		Entries []*diary.Entry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 {
		t.Errorf("unfiltered count = %d, want 2", body.Count)
	}

	day := time.Now().Format("2006-01-02")
	req = httptest.NewRequest(http.MethodGet, "/api/diary/user-1?date="+day, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode filtered: %v", err)
	}
	if body.Count != 1 {
		t.Errorf("filtered count = %d, want 1", body.Count)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/diary/user-1?date=not-a-date", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d", rec.Code)
	}
}

func TestDiaryDigest_RendersHTML(t *testing.T) {
	srv, _ := testServer(t, `{"title": "Snow", "content": "First snow today!", "emotion_tags": ["excited_thrilled"]}`)
	h := srv.Handler()

	if rec := postEvent(t, h, `{"event_name": "favorite_weather", "user_id": "user-1"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("seed event status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/diary/user-1/digest", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "Snow") {
		t.Errorf("digest missing entry title: %s", rec.Body)
	}
}

func TestQuotaEndpoint(t *testing.T) {
	srv, _ := testServer(t, `{}`)

	req := httptest.NewRequest(http.MethodGet, "/api/quota", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap quota.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Total != 5 {
		t.Errorf("total = %d, want 5", snap.Total)
	}
}

func TestHealthz_UnhealthyComponentGives503(t *testing.T) {
	srv, _ := testServer(t, `{}`)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy status = %d", rec.Code)
	}

	srv.deps.Statuses.Set("diary_store", recovery.StatusUnhealthy, "disk gone")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want 503", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("unhealthy")) {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestPair_ServesQRAndJSON(t *testing.T) {
	srv, _ := testServer(t, `{}`)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/pair", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/pair?format=json", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var info PairingInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.InstanceID != "inst-1" {
		t.Errorf("instance = %q", info.InstanceID)
	}
}

func TestRoot(t *testing.T) {
	srv, _ := testServer(t, `{}`)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("Pawprint")) {
		t.Errorf("body = %s", rec.Body)
	}

	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d", rec.Code)
	}
}

func TestEventStream_ForwardsBusEvents(t *testing.T) {
	srv, _ := testServer(t, `{}`)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the handler a moment to subscribe before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for srv.deps.Bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	srv.deps.Bus.Emit(events.SourcePipeline, events.KindEntryCreated, map[string]any{
		"entry_id": "e-1",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt events.Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if evt.Kind != events.KindEntryCreated {
		t.Errorf("kind = %q", evt.Kind)
	}
	if evt.Data["entry_id"] != "e-1" {
		t.Errorf("data = %v", evt.Data)
	}
}
