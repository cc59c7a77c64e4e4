package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"salesbot/internal/db"
	"salesbot/internal/interest"
	"salesbot/internal/session"
)

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	d, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	if _, err := d.Exec(`INSERT INTO products (id, name, active) VALUES (1, 'Botella Acero', 1)`); err != nil {
		t.Fatal(err)
	}

	srv := New(Config{Port: 0})
	srv.Mount("/api/conversations", session.NewHandler(session.NewManager(d, 5*time.Minute)).Routes())
	srv.Mount("/api/customers", interest.NewHandler(interest.NewStore(d)).Routes())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	ts := setupServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestInboundToInterestFlow(t *testing.T) {
	ts := setupServer(t)

	resp := postJSON(t, ts.URL+"/api/conversations/inbound",
		`{"phone": "+5215550001", "content": "me interesa la botella de acero"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("inbound status = %d", resp.StatusCode)
	}
	var inbound session.InboundResult
	if err := json.NewDecoder(resp.Body).Decode(&inbound); err != nil {
		t.Fatal(err)
	}
	if !inbound.CreatedConversation {
		t.Errorf("expected a new conversation, got %+v", inbound)
	}

	resp = postJSON(t, ts.URL+"/api/customers/+5215550001/interests",
		`{"signals": [{"kind": "product", "entity_id": 1, "level": "alto"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("apply status = %d", resp.StatusCode)
	}
	var report interest.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Inserted != 1 {
		t.Errorf("report = %+v, want 1 inserted", report)
	}

	listResp, err := http.Get(ts.URL + "/api/customers/+5215550001/interests")
	if err != nil {
		t.Fatal(err)
	}
	defer listResp.Body.Close()
	var listed struct {
		Interests []interest.Entry `json:"interests"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Interests) != 1 || listed.Interests[0].Name != "Botella Acero" {
		t.Errorf("interests = %+v", listed.Interests)
	}
}

func TestInterestsUnknownCustomer(t *testing.T) {
	ts := setupServer(t)

	resp, err := http.Get(ts.URL + "/api/customers/+5219999999/interests")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
