package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/threatlens/internal/detect"
	"github.com/lvonguyen/threatlens/internal/eventstore"
	"github.com/lvonguyen/threatlens/internal/logparse"
	"github.com/lvonguyen/threatlens/internal/pipeline"
	"github.com/lvonguyen/threatlens/internal/reputation"
)

const sshFailureLine = "Jan 16 10:30:00 server sshd[1234]: Failed password for admin from 192.168.1.100 port 22 ssh2"

func newTestServer() (*Server, *eventstore.Store) {
	logger := zap.NewNop()
	repClient := reputation.NewClient(reputation.NewMemoryCache(time.Minute), logger)
	parser := logparse.New(logger)
	p := pipeline.New(parser, detect.AnomalyConfig{}, repClient, logger)
	store := eventstore.NewStore()
	return NewServer(store, p, repClient, logger, Options{}), store
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// TestIngest_JSON verifies a JSON submission is parsed and stored.
func TestIngest_JSON(t *testing.T) {
	server, store := newTestServer()
	router := server.Router()

	body := `{"owner_id":"tenant-1","lines":["` + sshFailureLine + `"]}`
	rec := doJSON(t, router, http.MethodPost, "/api/v1/ingest", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.Stored != 1 || resp.ParsedLines != 1 {
		t.Errorf("expected 1 stored/parsed, got %+v", resp)
	}
	if store.Count("tenant-1") != 1 {
		t.Errorf("event should be stored under the owner")
	}
}

// TestIngest_PlainText verifies text/plain submissions with the owner in a
// header.
func TestIngest_PlainText(t *testing.T) {
	server, _ := newTestServer()
	router := server.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(sshFailureLine))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Owner-ID", "tenant-2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

// TestIngest_Rejections verifies unsupported content types and missing
// owner identity are rejected before parsing.
func TestIngest_Rejections(t *testing.T) {
	server, _ := newTestServer()
	router := server.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader("data"))
	req.Header.Set("Content-Type", "application/xml")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415 for xml, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/ingest", `{"content":"`+sshFailureLine+`"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing owner, got %d", rec.Code)
	}
}

// TestIngest_NothingParsed verifies the generic parse failure response.
func TestIngest_NothingParsed(t *testing.T) {
	server, _ := newTestServer()
	router := server.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/ingest", `{"owner_id":"t","content":"ab\ncd"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "could not parse any log entries") {
		t.Errorf("expected generic parse failure message, got %s", rec.Body.String())
	}
}

// TestAnalyze_StoredEvents verifies analysis over an owner's stored events.
func TestAnalyze_StoredEvents(t *testing.T) {
	server, _ := newTestServer()
	router := server.Router()

	lines := make([]string, 5)
	for i := range lines {
		lines[i] = sshFailureLine
	}
	body := `{"owner_id":"tenant-1","lines":["` + strings.Join(lines, `","`) + `"]}`
	if rec := doJSON(t, router, http.MethodPost, "/api/v1/ingest", body); rec.Code != http.StatusOK {
		t.Fatalf("ingest failed: %d", rec.Code)
	}

	rec := doJSON(t, router, http.MethodPost, "/api/v1/analyze", `{"owner_id":"tenant-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Count   int `json:"count"`
		Threats []struct {
			SourceAddress string `json:"source_address"`
			Score         int    `json:"score"`
			Level         string `json:"level"`
		} `json:"threats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("expected 1 threat record, got %d", resp.Count)
	}
	if resp.Threats[0].SourceAddress != "192.168.1.100" {
		t.Errorf("wrong source %q", resp.Threats[0].SourceAddress)
	}
}

// TestEvents_ListAndRemove verifies the event management endpoints.
func TestEvents_ListAndRemove(t *testing.T) {
	server, store := newTestServer()
	router := server.Router()

	stored := store.Append("tenant-1", []*logparse.Event{
		{SourceAddress: "192.168.1.100", Category: logparse.CategoryAuth, Severity: logparse.SeverityError, Message: "Failed password"},
	})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/events?owner_id=tenant-1", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), stored[0].ID) {
		t.Errorf("list should include the stored event: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/events/"+stored[0].ID+"?owner_id=tenant-1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 on remove, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/events/"+stored[0].ID+"?owner_id=tenant-1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second remove, got %d", rec.Code)
	}
}

// TestReputation verifies the direct reputation endpoint always answers.
func TestReputation(t *testing.T) {
	server, _ := newTestServer()
	router := server.Router()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/reputation/198.51.100.9", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Record *reputation.Record `json:"record"`
		Boost  int                `json:"boost"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.Record == nil {
		t.Fatal("record should never be nil")
	}
	if resp.Boost < -20 || resp.Boost > 50 {
		t.Errorf("boost %d outside bounds", resp.Boost)
	}
}

// TestScorePreview verifies the direct scorer endpoint.
func TestScorePreview(t *testing.T) {
	server, _ := newTestServer()
	router := server.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/score/preview", `{"failed_logins":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Score int    `json:"score"`
		Level string `json:"level"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.Score != 70 || resp.Level != "high" {
		t.Errorf("expected 70/high, got %+v", resp)
	}
}

// TestHealth verifies the health endpoint.
func TestHealth(t *testing.T) {
	server, _ := newTestServer()
	router := server.Router()

	rec := doJSON(t, router, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("unexpected health response: %d %s", rec.Code, rec.Body.String())
	}
}
