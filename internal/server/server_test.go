package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levelup/internal/config"
	"levelup/internal/jobs"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "tools.json"), []byte(`{"git": "git"}`), 0644))

	cfg, err := config.Load(ws)
	require.NoError(t, err)
	tools, err := config.LoadTools(ws)
	require.NoError(t, err)

	exec := jobs.New(cfg, tools, nil, nil, nil)
	repos := config.NewRepoRegistry(ws)
	srv := New(exec, repos, nil)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestSubmitModReturnsID(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/mods", map[string]string{
		"repo_url":    "https://example.com/demo.git",
		"type":        "builtin",
		"description": "remove inline",
		"mod_type":    "remove_inline",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decode(t, resp, &body)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "remove_inline", body["mod_type"])

	// The submitted mod is queued and visible via status.
	statusResp, err := http.Get(ts.URL + "/api/mods/" + body["id"].(string) + "/status")
	require.NoError(t, err)
	var status map[string]interface{}
	decode(t, statusResp, &status)
	assert.Equal(t, "queued", status["status"])
}

func TestSubmitModRejectsUnknownMod(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/mods", map[string]string{
		"repo_url": "https://example.com/demo.git",
		"type":     "builtin",
		"mod_type": "no_such_mod",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestModStatusNotFound(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/mods/ghost/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "not_found", body["status"])
}

func TestQueueStatus(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/mods", map[string]string{
		"repo_url": "https://example.com/demo.git",
		"type":     "commit",
		"commit_hash": "abc123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	qresp, err := http.Get(ts.URL + "/api/queue/status")
	require.NoError(t, err)

	var body struct {
		QueueSize int                        `json:"queue_size"`
		Results   map[string]json.RawMessage `json:"results"`
		Timestamp string                     `json:"timestamp"`
	}
	decode(t, qresp, &body)
	assert.Equal(t, 1, body.QueueSize)
	assert.Len(t, body.Results, 1)
	assert.NotEmpty(t, body.Timestamp)
}

func TestRepoCRUD(t *testing.T) {
	_, ts := newTestServer(t)

	// Initially empty.
	resp, err := http.Get(ts.URL + "/api/repos")
	require.NoError(t, err)
	var list []config.RepoConfig
	decode(t, resp, &list)
	assert.Empty(t, list)

	// Add.
	resp = postJSON(t, ts.URL+"/api/repos", map[string]string{
		"url":           "https://example.com/org/Demo.git",
		"post_checkout": "make deps",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var added config.RepoConfig
	decode(t, resp, &added)
	assert.Equal(t, "Demo", added.Name)
	assert.NotEmpty(t, added.ID)

	// List shows it.
	resp, err = http.Get(ts.URL + "/api/repos")
	require.NoError(t, err)
	decode(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "make deps", list[0].PostCheckout)

	// Delete it.
	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/repos/"+added.ID, nil)
	require.NoError(t, err)
	dresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, dresp.StatusCode)
	dresp.Body.Close()

	// Delete again: not found.
	dresp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, dresp.StatusCode)
	dresp.Body.Close()
}

func TestAvailableListings(t *testing.T) {
	_, ts := newTestServer(t)

	var mods []map[string]string
	resp, err := http.Get(ts.URL + "/api/available/mods")
	require.NoError(t, err)
	decode(t, resp, &mods)
	assert.NotEmpty(t, mods)

	var validators []map[string]string
	resp, err = http.Get(ts.URL + "/api/available/validators")
	require.NoError(t, err)
	decode(t, resp, &validators)
	require.Len(t, validators, 2)
	assert.Equal(t, "asm_o0", validators[0]["id"])

	var compilers []map[string]string
	resp, err = http.Get(ts.URL + "/api/available/compilers")
	require.NoError(t, err)
	decode(t, resp, &compilers)
	require.Len(t, compilers, 2)
}
