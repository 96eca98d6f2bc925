package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppexec/internal/command"
	"ppexec/internal/command/builtin"
	internaldb "ppexec/internal/db"
	"ppexec/internal/db/repository"
	"ppexec/internal/domain"
	"ppexec/internal/frame"
	"ppexec/internal/middleware"
	"ppexec/internal/pipeline"
	"ppexec/internal/storage"
	"ppexec/internal/table"
)

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func setupTestServer(t *testing.T, withJournal bool) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	store := storage.New(storage.Roots{
		Local:        filepath.Join(dir, "lpp"),
		Shared:       filepath.Join(dir, "spp"),
		InterProcess: filepath.Join(dir, "ips"),
	}, storage.DefaultLayout(), discardLogger())

	f, err := frame.FromRows([]string{"a", "b", "c"}, [][]any{{1, 2, "a"}, {2, 3, "b"}, {3, 4, "c"}})
	require.NoError(t, err)
	require.NoError(t, store.Write(context.Background(), domain.StorageInterProcess, "input_data", storage.Columnar, table.New(f)))

	reg := command.NewRegistry(store, command.DefaultSystemNames(), discardLogger())
	require.NoError(t, builtin.Register(reg, builtin.Options{TempDir: t.TempDir(), Logger: discardLogger()}))

	opts := Options{Logger: discardLogger(), AllowedOrigins: []string{"*"}}
	var execOpts []pipeline.Option
	if withJournal {
		p := internaldb.OpenTestJournal(t)
		repo := repository.NewRunRepo(p.Write, p.Read)
		opts.Journal = repo
		execOpts = append(execOpts, pipeline.WithJournal(repo))
	}
	execOpts = append(execOpts, pipeline.WithLogger(discardLogger()))
	exec := pipeline.NewExecutor(reg, execOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(NewServer(exec, opts).Router(ctx))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func postRun(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/runs", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	return resp
}

const goodRun = `{"steps": [
  {"name": "sys_read_interproc", "arguments": {
    "path": [{"value": "input_data"}],
    "storage_type": [{"value": "INTERPROCESSING"}]}},
  {"name": "sum", "arguments": {"col": [{"value": "a"}], "cols": [{"value": "b"}], "name": [{"key": "name", "value": "e"}]}},
  {"name": "head", "arguments": {"count": [{"value": 2}]}}
]}`

const failingRun = `[
  {"name": "sys_read_interproc", "arguments": {
    "path": [{"value": "input_data"}],
    "storage_type": [{"value": "INTERPROCESSING"}]}},
  {"name": "no_such_unit"},
  {"name": "head"}
]`

func TestHealthz(t *testing.T) {
	srv := setupTestServer(t, false)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.HeaderRequestID))
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestListCommands(t *testing.T) {
	srv := setupTestServer(t, false)
	resp, err := http.Get(srv.URL + "/v1/commands")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		Data []struct {
			Name   string `json:"name"`
			Source string `json:"source"`
		} `json:"data"`
	}](t, resp)
	sources := map[string]string{}
	for _, e := range body.Data {
		sources[e.Name] = e.Source
	}
	assert.Equal(t, "system", sources["sys_read_interproc"])
	assert.Equal(t, "builtin", sources["join"])
}

func TestCreateRun(t *testing.T) {
	srv := setupTestServer(t, false)

	t.Run("completed", func(t *testing.T) {
		resp := postRun(t, srv, goodRun)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decode[RunResult](t, resp)
		assert.Equal(t, "Completed", got.State)
		assert.Equal(t, domain.TriggerAPI, got.Trigger)
		assert.Equal(t, 2, got.Rows)
		assert.Equal(t, []string{"a", "b", "c", "e"}, got.Columns)
		assert.Equal(t, "`a` LONG,`b` LONG,`c` STRING,`e` LONG", got.Schema)
		require.Len(t, got.Preview, 2)
		assert.InDelta(t, 3, got.Preview[0]["e"], 0.001)
		assert.Nil(t, got.Error)
	})

	t.Run("failed step", func(t *testing.T) {
		resp := postRun(t, srv, failingRun)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		got := decode[RunResult](t, resp)
		assert.Equal(t, "Failed", got.State)
		require.NotNil(t, got.Error)
		assert.Equal(t, "UnknownCommand", got.Error.Kind)
		require.NotNil(t, got.Error.Step)
		assert.Equal(t, 1, *got.Error.Step)
		assert.Equal(t, "no_such_unit", got.Error.Command)
		assert.Empty(t, got.Preview)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp := postRun(t, srv, `{"steps": [{"arguments": {}}]}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		got := decode[Error](t, resp)
		assert.Equal(t, http.StatusBadRequest, got.Code)
	})
}

func TestRuns_Journal(t *testing.T) {
	srv := setupTestServer(t, true)

	ok := decode[RunResult](t, postRun(t, srv, goodRun))
	failed := decode[RunResult](t, postRun(t, srv, failingRun))

	resp, err := http.Get(srv.URL + "/v1/runs?limit=10")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[struct {
		Data []RunRecord `json:"data"`
	}](t, resp)
	require.Len(t, list.Data, 2)

	resp, err = http.Get(srv.URL + "/v1/runs/" + failed.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rec := decode[RunRecord](t, resp)
	assert.Equal(t, domain.RunStatusFailed, rec.Status)
	require.NotNil(t, rec.FailedStep)
	assert.Equal(t, 1, *rec.FailedStep)
	require.Len(t, rec.StepRuns, 2)
	assert.Equal(t, domain.StepStatusSuccess, rec.StepRuns[0].Status)
	assert.Equal(t, domain.StepStatusFailed, rec.StepRuns[1].Status)
	assert.Len(t, rec.Steps, 3)

	resp, err = http.Get(srv.URL + "/v1/runs/" + ok.ID)
	require.NoError(t, err)
	rec = decode[RunRecord](t, resp)
	assert.Equal(t, domain.RunStatusSuccess, rec.Status)
	assert.Len(t, rec.StepRuns, 3)

	resp, err = http.Get(srv.URL + "/v1/runs/does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/v1/runs?limit=-1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestRuns_JournalDisabled(t *testing.T) {
	srv := setupTestServer(t, false)
	for _, path := range []string{"/v1/runs", "/v1/runs/abc"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotImplemented, resp.StatusCode, path)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

func TestOpenAPI(t *testing.T) {
	require.NoError(t, OpenAPI().Validate(context.Background()))

	srv := setupTestServer(t, false)
	resp, err := http.Get(srv.URL + "/openapi.json")
	require.NoError(t, err)
	doc := decode[map[string]any](t, resp)
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	for _, p := range []string{"/healthz", "/v1/commands", "/v1/runs", "/v1/runs/{id}"} {
		assert.Contains(t, paths, p)
	}
}
