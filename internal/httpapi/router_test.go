package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentguard/policyguard/internal/config"
	"github.com/agentguard/policyguard/internal/dataframe"
	"github.com/agentguard/policyguard/internal/monitor"
	"github.com/agentguard/policyguard/internal/policyio"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{CORSOrigins: []string{"*"}},
		Auth:   config.AuthConfig{Provider: "none", BearerToken: "this-is-a-long-enough-test-token"},
	}
}

// newTestMonitor returns the process-wide monitor singleton, initializing it
// on first use. The singleton is shared across this file's test cases —
// each case opens its own context, so reuse is safe.
func newTestMonitor(t *testing.T) *monitor.Monitor {
	t.Helper()
	m, err := monitor.InitMonitor()
	if err != nil {
		m, err = monitor.Get()
		if err != nil {
			t.Fatalf("init/get monitor: %v", err)
		}
	}
	return m
}

func TestHealthCheckNeedsNoAuth(t *testing.T) {
	newTestMonitor(t)
	r := NewRouter(testConfig(), &RouterDeps{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", w.Code)
	}
}

func TestReadyReportsDegradedWithoutMonitor(t *testing.T) {
	r := NewRouter(testConfig(), &RouterDeps{})
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("got status %d, want 503", w.Code)
	}
}

func TestContextEndpointsRejectMissingBearerToken(t *testing.T) {
	m := newTestMonitor(t)
	r := NewRouter(testConfig(), &RouterDeps{Mon: m})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/contexts", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", w.Code)
	}
}

func TestOpenRegisterFinalizeDataFrameFlow(t *testing.T) {
	m := newTestMonitor(t)
	cfg := testConfig()
	r := NewRouter(cfg, &RouterDeps{Mon: m})
	auth := "Bearer " + cfg.Auth.BearerToken

	openReq := httptest.NewRequest(http.MethodPost, "/api/v1/contexts", nil)
	openReq.Header.Set("Authorization", auth)
	openW := httptest.NewRecorder()
	r.ServeHTTP(openW, openReq)
	if openW.Code != http.StatusCreated {
		t.Fatalf("open context: got status %d, want 201, body %s", openW.Code, openW.Body.String())
	}
	var openResp struct {
		ContextID string `json:"context_id"`
	}
	if err := json.Unmarshal(openW.Body.Bytes(), &openResp); err != nil {
		t.Fatalf("decoding open response: %v", err)
	}

	body, err := policyio.MarshalDataFrameJSON(dataframe.ExampleDF())
	if err != nil {
		t.Fatalf("marshaling dataframe: %v", err)
	}
	regReq := httptest.NewRequest(http.MethodPost, "/api/v1/contexts/"+openResp.ContextID+"/dataframes", bytes.NewReader(body))
	regReq.Header.Set("Authorization", auth)
	regW := httptest.NewRecorder()
	r.ServeHTTP(regW, regReq)
	if regW.Code != http.StatusCreated {
		t.Fatalf("register dataframe: got status %d, want 201, body %s", regW.Code, regW.Body.String())
	}
	var regResp struct {
		DataFrameID string `json:"dataframe_id"`
	}
	if err := json.Unmarshal(regW.Body.Bytes(), &regResp); err != nil {
		t.Fatalf("decoding register response: %v", err)
	}

	finReq := httptest.NewRequest(http.MethodPost, "/api/v1/contexts/"+openResp.ContextID+"/dataframes/"+regResp.DataFrameID+"/finalize", nil)
	finReq.Header.Set("Authorization", auth)
	finW := httptest.NewRecorder()
	r.ServeHTTP(finW, finReq)
	// dataframe.ExampleDF carries an undischarged declassification obligation,
	// so finalize must be blocked (422), not succeed.
	if finW.Code != http.StatusUnprocessableEntity {
		t.Fatalf("finalize: got status %d, want 422, body %s", finW.Code, finW.Body.String())
	}
}

func TestEvaluateAdmissionDeniesWithoutEngineConfigured(t *testing.T) {
	m := newTestMonitor(t)
	cfg := testConfig()
	r := NewRouter(cfg, &RouterDeps{Mon: m})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admission/evaluate", bytes.NewReader([]byte(`{"operation":"udf","name":"dt.offset_by"}`)))
	req.Header.Set("Authorization", "Bearer "+cfg.Auth.BearerToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("got status %d, want 403, body %s", w.Code, w.Body.String())
	}
}
