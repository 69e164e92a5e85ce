package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialkit/codify/nlp"
	"github.com/trialkit/codify/nlp/tagger"
	"github.com/trialkit/codify/runner"
)

func dialEvents(srv *httptest.Server, id string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/runs/" + id + "/events"
	return websocket.DefaultDialer.Dial(url, nil)
}

// readEvents collects stream messages until the server closes the
// connection.
func readEvents(t *testing.T, conn *websocket.Conn) []statusEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	var events []statusEvent
	for {
		var ev statusEvent
		if err := conn.ReadJSON(&ev); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure),
				"expected normal close, got: %v", err)
			return events
		}
		events = append(events, ev)
	}
}

func TestRunEventsStream(t *testing.T) {
	eng := tagger.New(nlp.KindTagger, t.TempDir(), false)
	s := newTestServer(t, eng)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	rec := do(t, s, http.MethodPost, "/runs", `{"condition": "asthma"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	created := decodeBody[createRunResponse](t, rec)

	conn, _, err := dialEvents(srv, created.ID)
	require.NoError(t, err)
	defer conn.Close()

	events := readEvents(t, conn)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, "status", last.Type)
	assert.Equal(t, created.ID, last.Run)
	assert.Equal(t, runner.StatusDone, last.Status)
	assert.True(t, last.Done)
}

func TestRunEventsAfterFinish(t *testing.T) {
	eng := tagger.New(nlp.KindTagger, t.TempDir(), false)
	s := newTestServer(t, eng)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	rec := do(t, s, http.MethodPost, "/runs", `{"condition": "asthma"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	created := decodeBody[createRunResponse](t, rec)

	waitForRun(t, s, created.ID, (*runner.Run).Done)
	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.active) == 0
	}, 10*time.Second, 50*time.Millisecond)

	// A subscriber to a finished run gets its last word and a close.
	conn, _, err := dialEvents(srv, created.ID)
	require.NoError(t, err)
	defer conn.Close()

	events := readEvents(t, conn)
	require.Len(t, events, 1)
	assert.Equal(t, runner.StatusDone, events[0].Status)
	assert.True(t, events[0].Done)
}

func TestRunEventsUnknownRun(t *testing.T) {
	s := newTestServer(t)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, resp, err := dialEvents(srv, "run_missing")
	require.Error(t, err)
	require.Nil(t, conn)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
