package nodes_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aretw0/promptflow/pkg/nodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fmt.Fprintf(w, "%s %s", r.Method, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPNode(t *testing.T) {
	srv := echoServer(t)
	h := nodes.NewHTTPNode(&nodes.Services{HTTP: srv.Client()})
	configure(t, h, map[string]any{"url": srv.URL, "request_type": "post"})

	assert.Equal(t, `POST {"q":1}`, mustRun(t, h, stateWith(`{"q": 1}`)))
	assert.Equal(t, "Invalid JSON", mustRun(t, h, stateWith("nope")))

	configure(t, h, map[string]any{"request_type": "patch"})
	_, err := run(t, h, stateWith(`{}`))
	assert.Error(t, err)
}

func TestJSONRequestNode(t *testing.T) {
	srv := echoServer(t)
	j := nodes.NewJSONRequestNode(&nodes.Services{HTTP: srv.Client()})
	configure(t, j, map[string]any{"request_type": "put"})

	payload, err := json.Marshal(map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "PUT "+string(payload), mustRun(t, j, stateWith(string(payload))))

	_, err = run(t, j, stateWith(`{"other": 1}`))
	assert.Error(t, err)
}

func TestScrapeNode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><p>Hello {world}</p><div><a href="/next">Next</a></div></body></html>`)
	}))
	t.Cleanup(srv.Close)

	s := nodes.NewScrapeNode(&nodes.Services{HTTP: srv.Client()})
	payload, err := json.Marshal(map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "Hello {{world}} [Next](/next)", mustRun(t, s, stateWith(string(payload))))
	assert.Equal(t, "Invalid JSON", mustRun(t, s, stateWith("nope")))
}
