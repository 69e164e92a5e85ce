package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialkit/codify/config"
	"github.com/trialkit/codify/db"
	itesting "github.com/trialkit/codify/internal/testing"
	"github.com/trialkit/codify/nlp"
	"github.com/trialkit/codify/nlp/tagger"
	"github.com/trialkit/codify/registry"
	"github.com/trialkit/codify/trial"
)

const trialOne = `{
	"id": "NCT01000001",
	"brief_title": "Inhaled Steroid Study",
	"overall_status": "Recruiting",
	"condition": ["Asthma"],
	"eligibility": {
		"gender": "All",
		"minimum_age": "18 Years",
		"maximum_age": "N/A",
		"healthy_volunteers": "No",
		"criteria": {"textblock": "Inclusion Criteria:\n\n- Adults with persistent asthma\n\nExclusion Criteria:\n\n- Current smokers"}
	}
}`

const trialTwo = `{
	"id": "NCT01000002",
	"brief_title": "Biologic Add-on Study",
	"overall_status": "Recruiting",
	"condition": ["Asthma"],
	"eligibility": {
		"gender": "All",
		"minimum_age": "12 Years",
		"maximum_age": "75 Years",
		"healthy_volunteers": "No",
		"criteria": {"textblock": "Inclusion Criteria:\n\n- Severe eosinophilic asthma\n\nExclusion Criteria:\n\n- Pregnancy"}
	}
}`

// fixtureSearcher decodes canned registry documents, fresh copies per
// call like the real client would return.
type fixtureSearcher struct {
	docs []string
}

func (s *fixtureSearcher) decode(progress registry.ProgressFunc) ([]*trial.Trial, error) {
	if progress != nil {
		progress(1)
	}
	trials := make([]*trial.Trial, 0, len(s.docs))
	for _, doc := range s.docs {
		tr, err := trial.Decode([]byte(doc))
		if err != nil {
			return nil, err
		}
		trials = append(trials, tr)
	}
	return trials, nil
}

func (s *fixtureSearcher) SearchForCondition(_ context.Context, _ string, _ registry.Recruiting, _ []string, progress registry.ProgressFunc) ([]*trial.Trial, error) {
	return s.decode(progress)
}

func (s *fixtureSearcher) SearchForTerm(_ context.Context, _ string, _ registry.Recruiting, _ []string, progress registry.ProgressFunc) ([]*trial.Trial, error) {
	return s.decode(progress)
}

func newTestServer(t *testing.T, engines ...nlp.Engine) *Server {
	t.Helper()
	conn := itesting.CreateTestDB(t)
	require.NoError(t, db.Migrate(conn, nil))

	cfg := &config.Config{}
	cfg.Run.Dir = t.TempDir()
	cfg.Engines.Dir = filepath.Join(cfg.Run.Dir, "engines.d")
	cfg.Registry.BaseURL = "http://api.lillycoi.com/v1"

	s, err := New(cfg, conn, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.cancel()
		s.wg.Wait()
	})

	// Tests never reach the network; searches run against fixtures.
	s.registry = &fixtureSearcher{docs: []string{trialOne, trialTwo}}
	s.engines = engines
	return s
}

// do runs one request through the route table.
func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	eng := tagger.New(nlp.KindTagger, t.TempDir(), false)
	s := newTestServer(t, eng)

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["trials"])
	assert.Equal(t, float64(0), body["active_runs"])
	assert.Equal(t, float64(1), body["engines"])

	rec = do(t, s, http.MethodPost, "/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestVersion(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	assert.NotEmpty(t, body["version"])
	assert.NotEmpty(t, body["go_version"])
}

func TestCORSHeaders(t *testing.T) {
	s := newTestServer(t)
	s.cfg.Server.AllowedOrigins = []string{"http://localhost", "https://app.example.com"}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	// Preflight never reaches the handler
	req = httptest.NewRequest(http.MethodOptions, "/runs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCheckOrigin(t *testing.T) {
	s := newTestServer(t)

	// Defaults allow localhost on any port
	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Origin", "http://localhost:8080")
	assert.True(t, s.checkOrigin(req))

	req.Header.Set("Origin", "http://elsewhere.example.com")
	assert.False(t, s.checkOrigin(req))

	req.Header.Del("Origin")
	assert.True(t, s.checkOrigin(req))
}

func TestFindAvailablePort(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer listener.Close()
	busy := listener.Addr().(*net.TCPAddr).Port

	port, err := findAvailablePort(busy)
	require.NoError(t, err)
	assert.NotEqual(t, busy, port)
	assert.Greater(t, port, busy)
	assert.LessOrEqual(t, port, busy+10)
}
