package rest

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ParthasarathiMohanty986/healthcare-security/internal/attributes"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/audit"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/emergency"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/engine"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/metrics"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/policy"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/ratelimit"
	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

const (
	testSecret = "test-secret"
	testIssuer = "ehr-pdp-test"
)

const testSeed = `
principals:
  - id: dr-cardio
    username: dr.smith
    role: doctor
    department: cardiology
    clearance_level: 3
    is_emergency_authorized: true
  - id: nurse-1
    username: nurse.jones
    role: nurse
    department: cardiology
    clearance_level: 1
patients:
  - id: P001
    first_name: Jane
    last_name: Doe
    date_of_birth: "1980-04-02"
    blood_group: O+
    records:
      - id: ehr-1
        record_type: consultation
        sensitivity_level: 2
        required_clearance_level: 2
        required_department: cardiology
        diagnosis: Hypertension
      - id: ehr-2
        record_type: oncology
        sensitivity_level: 3
        required_clearance_level: 5
        required_department: oncology
        diagnosis: Classified diagnosis
      - id: ehr-3
        record_type: psychiatric
        patient_consent: false
        diagnosis: Withheld
    reports:
      - id: rep-1
        report_type: xray
        title: Chest X-Ray
        findings: Clear
        sensitivity_level: 1
        required_clearance_level: 1
    lab_results:
      - id: lab-1
        test_name: Lipid panel
        result_value: "190"
        sensitivity_level: 1
        required_clearance_level: 1
`

type testServer struct {
	server *Server
	sink   *audit.MemorySink
}

func newTestServer(t *testing.T, m metrics.Metrics, opts ...Option) *testServer {
	t.Helper()

	dir, repo, err := ParseSeed([]byte(testSeed))
	require.NoError(t, err)

	sink := audit.NewMemorySink()
	manager, err := emergency.NewManager(emergency.NewMemoryStore(), sink, emergency.DefaultConfig())
	require.NoError(t, err)

	eng, err := engine.New(engine.Config{ParallelWorkers: 2},
		attributes.NewResolver(attributes.DefaultShiftBoundaries()),
		policy.NewEvaluator(nil),
		manager,
		sink,
	)
	require.NoError(t, err)

	authenticator, err := NewAuthenticator(testSecret, testIssuer, dir, zap.NewNop())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Version = "test"
	srv, err := New(cfg, eng, repo, authenticator, m, zap.NewNop(), opts...)
	require.NoError(t, err)

	return &testServer{server: srv, sink: sink}
}

func bearer(t *testing.T, subject string) string {
	t.Helper()
	token, err := SignToken(testSecret, testIssuer, subject, subject, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func (ts *testServer) do(t *testing.T, method, path, subject string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if subject != "" {
		req.Header.Set("Authorization", bearer(t, subject))
	}
	w := httptest.NewRecorder()
	ts.server.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

// recordsBody mirrors RecordsResponse with the resource left as raw JSON
type recordsBody struct {
	IsEmergency       bool `json:"is_emergency"`
	HasEmergencyToken bool `json:"has_emergency_token"`
	Accessible        []struct {
		Resource map[string]interface{} `json:"resource"`
		Decision GrantedDecision        `json:"access_decision"`
	} `json:"accessible"`
	Denied  []DeniedResource `json:"denied"`
	Summary AccessSummary    `json:"summary"`
}

func (b recordsBody) accessibleIDs() []string {
	ids := make([]string, 0, len(b.Accessible))
	for _, a := range b.Accessible {
		ids = append(ids, a.Resource["id"].(string))
	}
	return ids
}

func (b recordsBody) deniedIDs() []string {
	ids := make([]string, 0, len(b.Denied))
	for _, d := range b.Denied {
		ids = append(ids, d.ID)
	}
	return ids
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, metrics.NewPrometheusMetrics("ehr_pdp"))

	w := ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t, nil)

	expired, err := SignToken(testSecret, testIssuer, "dr-cardio", "dr.smith", -time.Minute)
	require.NoError(t, err)
	wrongKey, err := SignToken("other-secret", testIssuer, "dr-cardio", "dr.smith", time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := SignToken(testSecret, "someone-else", "dr-cardio", "dr.smith", time.Hour)
	require.NoError(t, err)
	unknown, err := SignToken(testSecret, testIssuer, "ghost", "ghost", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "empty token", header: "Bearer "},
		{name: "malformed token", header: "Bearer not-a-jwt"},
		{name: "expired token", header: "Bearer " + expired},
		{name: "wrong signing key", header: "Bearer " + wrongKey},
		{name: "wrong issuer", header: "Bearer " + wrongIssuer},
		{name: "unknown subject", header: "Bearer " + unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/patients", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			ts.server.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestListPatients(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/v1/patients", "nurse-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp PatientListResponse
	decode(t, w, &resp)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Patients, 1)
	assert.Equal(t, "P001", resp.Patients[0].ID)
	assert.Equal(t, "O+", resp.Patients[0].BloodGroup)
}

func TestRecords_UnknownPatient(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/v1/patients/P999/ehr", "dr-cardio", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecords_EHRView(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/v1/patients/P001/ehr", "dr-cardio", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body recordsBody
	decode(t, w, &body)
	assert.False(t, body.IsEmergency)
	assert.False(t, body.HasEmergencyToken)
	assert.Equal(t, []string{"ehr-1"}, body.accessibleIDs())
	assert.ElementsMatch(t, []string{"ehr-2", "ehr-3"}, body.deniedIDs())
	assert.Equal(t, AccessSummary{Total: 3, Accessible: 1, Denied: 2}, body.Summary)

	assert.Equal(t, "Hypertension", body.Accessible[0].Resource["diagnosis"])
	assert.NotEmpty(t, body.Accessible[0].Decision.ChecksPassed)

	// denied records never carry clinical content
	assert.NotContains(t, w.Body.String(), "Classified diagnosis")
	assert.NotContains(t, w.Body.String(), "Withheld")
	for _, d := range body.Denied {
		assert.False(t, d.Decision.Granted)
		assert.NotEmpty(t, d.Decision.Reasons)
		assert.NotEmpty(t, d.Fields["record_type"])
	}

	// one audit entry per record
	assert.Equal(t, 3, ts.sink.Count(types.ActionAccessEHR))
}

func TestRecords_EmergencyTokenUpgrade(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/v1/emergency/request", "dr-cardio",
		IssueTokenRequest{PatientID: "P001", Reason: "cardiac arrest"})
	require.Equal(t, http.StatusCreated, w.Code)
	var issued types.IssueResult
	decode(t, w, &issued)
	require.NotNil(t, issued.Token)
	tokenID := issued.Token.ID

	tests := []struct {
		name  string
		path  string
		setup func(r *http.Request)
	}{
		{name: "query parameter", path: "/v1/patients/P001/ehr?token_id=" + tokenID},
		{
			name: "header",
			path: "/v1/patients/P001/ehr",
			setup: func(r *http.Request) {
				r.Header.Set(EmergencyTokenHeader, tokenID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Authorization", bearer(t, "dr-cardio"))
			if tt.setup != nil {
				tt.setup(req)
			}
			w := httptest.NewRecorder()
			ts.server.ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code)

			var body recordsBody
			decode(t, w, &body)
			assert.True(t, body.IsEmergency)
			assert.True(t, body.HasEmergencyToken)
			assert.ElementsMatch(t, []string{"ehr-1", "ehr-2"}, body.accessibleIDs())
			// consent is never overridden
			assert.Equal(t, []string{"ehr-3"}, body.deniedIDs())
		})
	}

	// the upgrade path does not count as a token use
	w = ts.do(t, http.MethodPost, "/v1/emergency/validate", "dr-cardio", TokenRequest{TokenID: tokenID})
	require.Equal(t, http.StatusOK, w.Code)
	var validated types.ValidationResult
	decode(t, w, &validated)
	assert.True(t, validated.Valid)
	assert.Equal(t, 1, validated.TimesUsed)
}

func TestRecords_ForeignTokenDoesNotUpgrade(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/v1/emergency/request", "dr-cardio",
		IssueTokenRequest{PatientID: "P001", Reason: "trauma"})
	require.Equal(t, http.StatusCreated, w.Code)
	var issued types.IssueResult
	decode(t, w, &issued)

	w = ts.do(t, http.MethodGet, "/v1/patients/P001/ehr?token_id="+issued.Token.ID, "nurse-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body recordsBody
	decode(t, w, &body)
	assert.False(t, body.IsEmergency)
	assert.False(t, body.HasEmergencyToken)
}

func TestRecords_ReportsAndLabs(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		path   string
		wantID string
		action types.AuditAction
	}{
		{name: "reports", path: "/v1/patients/P001/reports", wantID: "rep-1", action: types.ActionAccessReport},
		{name: "labs", path: "/v1/patients/P001/labs", wantID: "lab-1", action: types.ActionAccessLab},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, tt.path, "nurse-1", nil)
			require.Equal(t, http.StatusOK, w.Code)

			var body recordsBody
			decode(t, w, &body)
			assert.Equal(t, []string{tt.wantID}, body.accessibleIDs())
			assert.Empty(t, body.Denied)
			assert.Equal(t, 1, ts.sink.Count(tt.action))
		})
	}
}

func TestEmergencyTokenEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/v1/emergency/request", "dr-cardio",
		IssueTokenRequest{PatientID: "P001", Reason: "stroke"})
	require.Equal(t, http.StatusCreated, w.Code)
	var first types.IssueResult
	decode(t, w, &first)
	assert.False(t, first.AlreadyExisted)

	w = ts.do(t, http.MethodPost, "/v1/emergency/request", "dr-cardio",
		IssueTokenRequest{PatientID: "P001", Reason: "stroke"})
	require.Equal(t, http.StatusOK, w.Code)
	var second types.IssueResult
	decode(t, w, &second)
	assert.True(t, second.AlreadyExisted)
	assert.Equal(t, first.Token.ID, second.Token.ID)

	w = ts.do(t, http.MethodGet, "/v1/emergency/my-tokens", "dr-cardio", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list TokenListResponse
	decode(t, w, &list)
	require.Len(t, list.Tokens, 1)

	// another principal's token is indistinguishable from a missing one
	w = ts.do(t, http.MethodPost, "/v1/emergency/revoke", "nurse-1", TokenRequest{TokenID: first.Token.ID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/emergency/revoke", "dr-cardio", TokenRequest{TokenID: first.Token.ID})
	require.Equal(t, http.StatusOK, w.Code)
	var revoked types.RevokeResult
	decode(t, w, &revoked)
	assert.Equal(t, types.TokenRevoked, revoked.Status)
	assert.Equal(t, types.TokenActive, revoked.PreviousStatus)

	w = ts.do(t, http.MethodPost, "/v1/emergency/validate", "dr-cardio", TokenRequest{TokenID: first.Token.ID})
	require.Equal(t, http.StatusOK, w.Code)
	var validated types.ValidationResult
	decode(t, w, &validated)
	assert.False(t, validated.Valid)
	assert.Equal(t, types.TokenRevoked, validated.Status)

	w = ts.do(t, http.MethodGet, "/v1/emergency/my-tokens", "nurse-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tokens":[]}`, w.Body.String())
}

func TestEmergencyTokenEndpoints_Errors(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name       string
		path       string
		subject    string
		body       interface{}
		wantStatus int
	}{
		{
			name:       "not emergency authorized",
			path:       "/v1/emergency/request",
			subject:    "nurse-1",
			body:       IssueTokenRequest{PatientID: "P001", Reason: "fall"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "missing reason",
			path:       "/v1/emergency/request",
			subject:    "dr-cardio",
			body:       IssueTokenRequest{PatientID: "P001"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing token id",
			path:       "/v1/emergency/validate",
			subject:    "dr-cardio",
			body:       TokenRequest{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown token",
			path:       "/v1/emergency/validate",
			subject:    "dr-cardio",
			body:       TokenRequest{TokenID: "no-such-token"},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "revoke unknown token",
			path:       "/v1/emergency/revoke",
			subject:    "dr-cardio",
			body:       TokenRequest{TokenID: "no-such-token"},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, tt.path, tt.subject, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)

			var resp ErrorResponse
			decode(t, w, &resp)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestEmergencyTokenEndpoints_MalformedBody(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/emergency/request", strings.NewReader("{not json"))
	req.Header.Set("Authorization", bearer(t, "dr-cardio"))
	w := httptest.NewRecorder()
	ts.server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.168.1.10"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		trusted    []*net.IPNet
		want       string
	}{
		{name: "no header", remoteAddr: "10.0.0.5:52000", trusted: trusted, want: "10.0.0.5"},
		{name: "untrusted peer ignores header", remoteAddr: "203.0.113.9:4000", forwarded: "198.51.100.1", trusted: trusted, want: "203.0.113.9"},
		{name: "no trusted proxies ignores header", remoteAddr: "10.0.0.5:52000", forwarded: "198.51.100.1", want: "10.0.0.5"},
		{name: "trusted peer", remoteAddr: "10.0.0.5:52000", forwarded: "203.0.113.7", trusted: trusted, want: "203.0.113.7"},
		{name: "spoofed leftmost hop", remoteAddr: "10.0.0.5:52000", forwarded: "1.2.3.4, 203.0.113.7, 10.0.0.1", trusted: trusted, want: "203.0.113.7"},
		{name: "single address proxy", remoteAddr: "192.168.1.10:80", forwarded: "203.0.113.8", trusted: trusted, want: "203.0.113.8"},
		{name: "all hops trusted", remoteAddr: "10.0.0.5:52000", forwarded: "10.1.1.1, 10.0.0.1", trusted: trusted, want: "10.1.1.1"},
		{name: "malformed hop", remoteAddr: "10.0.0.5:52000", forwarded: "not-an-ip", trusted: trusted, want: "10.0.0.5"},
		{name: "malformed hop behind trusted hop", remoteAddr: "10.0.0.5:52000", forwarded: "not-an-ip, 10.0.0.9", trusted: trusted, want: "10.0.0.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trusted))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	nets, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.10 ", "::1"})
	require.NoError(t, err)
	require.Len(t, nets, 3)
	assert.True(t, nets[1].Contains(net.ParseIP("192.168.1.10")))
	assert.False(t, nets[1].Contains(net.ParseIP("192.168.1.11")))
	assert.True(t, nets[2].Contains(net.ParseIP("::1")))

	_, err = ParseTrustedProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"proxy.local"})
	assert.Error(t, err)
}

func TestAuthenticator_OriginBehindTrustedProxy(t *testing.T) {
	dir, _, err := ParseSeed([]byte(testSeed))
	require.NoError(t, err)
	trusted, err := ParseTrustedProxies([]string{"192.0.2.0/24"})
	require.NoError(t, err)

	var origin string
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin = audit.OriginFrom(r.Context())
	})

	tests := []struct {
		name string
		opts []AuthOption
		want string
	}{
		{name: "direct", want: "192.0.2.1"},
		{name: "trusted proxy", opts: []AuthOption{WithTrustedProxies(trusted)}, want: "198.51.100.20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAuthenticator(testSecret, testIssuer, dir, nil, tt.opts...)
			require.NoError(t, err)

			// httptest requests arrive from 192.0.2.1
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", bearer(t, "nurse-1"))
			req.Header.Set("X-Forwarded-For", "198.51.100.20")
			a.Middleware(capture).ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, origin)
		})
	}
}

func TestAuditOriginFromRequest(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/patients/P001/reports", nil)
	req.Header.Set("Authorization", bearer(t, "nurse-1"))
	req.Header.Set("X-Forwarded-For", "198.51.100.20")
	w := httptest.NewRecorder()
	ts.server.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	entries := ts.sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "192.0.2.1", entries[0].Origin, "forwarded header from an untrusted peer is ignored")
	assert.Equal(t, "nurse-1", entries[0].Actor)
}

func TestMaxBodySize(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.server.config.MaxBodySize = 64

	body := `{"patient_id":"P001","reason":"` + strings.Repeat("x", 128) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/emergency/request", strings.NewReader(body))
	req.Header.Set("Authorization", bearer(t, "dr-cardio"))
	w := httptest.NewRecorder()
	ts.server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	cfg.EmergencyRPS = 1
	cfg.BurstFactor = 1
	cfg.DefaultRPS = 100
	ts := newTestServer(t, nil, WithRateLimiter(ratelimit.NewMemoryLimiter(cfg)))

	w := ts.do(t, http.MethodPost, "/v1/emergency/request", "dr-cardio",
		IssueTokenRequest{PatientID: "P001", Reason: "cardiac arrest"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = ts.do(t, http.MethodPost, "/v1/emergency/request", "dr-cardio",
		IssueTokenRequest{PatientID: "P001", Reason: "cardiac arrest"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// other endpoints and other principals use their own buckets
	w = ts.do(t, http.MethodGet, "/v1/emergency/my-tokens", "dr-cardio", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))

	w = ts.do(t, http.MethodPost, "/v1/emergency/request", "nurse-1",
		IssueTokenRequest{PatientID: "P001", Reason: "fall"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
