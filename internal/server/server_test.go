package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"jetstream/internal/auth"
	"jetstream/internal/dispatch"
	"jetstream/internal/jobs"
	"jetstream/internal/notes"
	"jetstream/internal/oplog"
)

type fakeDispatcher struct {
	reg      *jobs.Registry
	started  []dispatch.StartRequest
	startErr error
}

func (f *fakeDispatcher) Start(req dispatch.StartRequest) (dispatch.StartResult, error) {
	if f.startErr != nil {
		return dispatch.StartResult{}, f.startErr
	}
	f.started = append(f.started, req)
	j := jobs.Job{
		ID:      "job-1",
		Bundle:  req.Bundle,
		DevKey:  req.DevKey,
		Records: req.Records,
		Total:   len(req.Records),
	}
	f.reg.Register(j)
	return dispatch.StartResult{JobID: j.ID, Total: j.Total, IntervalMs: 1000}, nil
}

func (f *fakeDispatcher) Stop(id string) (jobs.Job, error) {
	if _, ok := f.reg.Get(id); !ok {
		return jobs.Job{}, dispatch.ErrNotFound
	}
	j, _ := f.reg.MarkStopped(id)
	return j, nil
}

func (f *fakeDispatcher) Delete(id string) (jobs.Job, error) {
	j, ok := f.reg.Delete(id)
	if !ok {
		return jobs.Job{}, dispatch.ErrNotFound
	}
	return j, nil
}

type testEnv struct {
	srv  *httptest.Server
	disp *fakeDispatcher
	reg  *jobs.Registry
	logs *oplog.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg := jobs.NewRegistry()
	logs := oplog.NewBuffer(zerolog.Nop())
	disp := &fakeDispatcher{reg: reg}
	np := notes.NewStore(filepath.Join(t.TempDir(), "notes.enc"), "passphrase", zerolog.Nop())
	as := auth.New(auth.Config{
		Username:      "admin",
		Password:      "hunter2",
		SessionSecret: "test-secret",
		SessionTTL:    time.Hour,
	})
	s := New(disp, reg, logs, np, as, nil, 3600, zerolog.Nop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, disp: disp, reg: reg, logs: logs}
}

func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	body := `{"username":"admin","password":"hunter2"}`
	resp, err := http.Post(e.srv.URL+"/login", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == sessionCookie {
			return ck
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func (e *testEnv) do(t *testing.T, method, path string, ck *http.Cookie, body string) *http.Response {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if ck != nil {
		req.AddCookie(ck)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do %s %s: %v", method, path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	resp, err := http.Get(env.srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAPIRejectsUnauthenticated(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/jobs", nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	resp, err := http.Post(env.srv.URL+"/login", "application/json",
		strings.NewReader(`{"username":"admin","password":"wrong"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestBearerTokenAccepted(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ck := env.login(t)

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+ck.Value)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestListJobs(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ck := env.login(t)
	env.reg.Register(jobs.Job{ID: "a", Bundle: "com.one", Total: 3})

	resp := env.do(t, http.MethodGet, "/api/jobs", ck, "")
	var got []jobs.Summary
	decodeJSON(t, resp, &got)
	if len(got) != 1 || got[0].ID != "a" || got[0].Status != jobs.StatusRunning {
		t.Fatalf("jobs = %+v", got)
	}
}

func TestStopJob(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ck := env.login(t)
	env.reg.Register(jobs.Job{ID: "a", Bundle: "com.one", Total: 3})

	resp := env.do(t, http.MethodPost, "/api/jobs/a/stop", ck, "")
	var got map[string]any
	decodeJSON(t, resp, &got)
	if resp.StatusCode != http.StatusOK || got["status"] != "stopped" {
		t.Fatalf("status=%d body=%v", resp.StatusCode, got)
	}

	resp = env.do(t, http.MethodPost, "/api/jobs/missing/stop", ck, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing job status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteRefusesRunningJob(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ck := env.login(t)
	env.reg.Register(jobs.Job{ID: "a", Bundle: "com.one", Total: 3})

	resp := env.do(t, http.MethodDelete, "/api/jobs/a", ck, "")
	var got map[string]any
	decodeJSON(t, resp, &got)
	if resp.StatusCode != http.StatusBadRequest || got["error"] != "running" {
		t.Fatalf("status=%d body=%v", resp.StatusCode, got)
	}
	if _, ok := env.reg.Get("a"); !ok {
		t.Fatal("running job must not be deleted")
	}

	env.reg.MarkStopped("a")
	resp = env.do(t, http.MethodDelete, "/api/jobs/a", ck, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete stopped job status = %d", resp.StatusCode)
	}
	if _, ok := env.reg.Get("a"); ok {
		t.Fatal("job still present after delete")
	}

	resp = env.do(t, http.MethodDelete, "/api/jobs/a", ck, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted job status = %d, want 404", resp.StatusCode)
	}
}

func TestLogsFilterAndLimit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ck := env.login(t)
	for i := 0; i < 5; i++ {
		env.logs.Append(oplog.Entry{Type: oplog.TypeSendSuccess, Bundle: "com.one", Message: "m"})
	}
	env.logs.Append(oplog.Entry{Type: oplog.TypeSendError, Bundle: "com.two", Message: "m"})

	resp := env.do(t, http.MethodGet, "/api/logs?bundle=com.one&limit=2", ck, "")
	var got []oplog.Entry
	decodeJSON(t, resp, &got)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, e := range got {
		if e.Bundle != "com.one" {
			t.Fatalf("wrong bundle in result: %+v", e)
		}
	}
}

func TestNotesRoundTrip(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ck := env.login(t)

	resp := env.do(t, http.MethodPost, "/api/notes", ck, `{"text":"dev key rotation friday"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save status = %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/notes", ck, "")
	var got map[string]string
	decodeJSON(t, resp, &got)
	if got["text"] != "dev key rotation friday" {
		t.Fatalf("text = %q", got["text"])
	}
}

func uploadRequest(t *testing.T, url string, ck *http.Cookie, fields map[string]string, csv string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("field %s: %v", k, err)
		}
	}
	if csv != "" {
		fw, err := mw.CreateFormFile("file", "batch.csv")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		if _, err := fw.Write([]byte(csv)); err != nil {
			t.Fatalf("write csv: %v", err)
		}
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, url+"/api/upload", &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if ck != nil {
		req.AddCookie(ck)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func TestUploadStartsJob(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ck := env.login(t)

	csv := "appsflyer_id,advertising_id,country\nid-1,adv-1,US\nid-2,adv-2,DE\n"
	resp := uploadRequest(t, env.srv.URL, ck, map[string]string{
		"bundle": "com.example.app",
		"devKey": "k-123",
		"days":   "2",
	}, csv)
	var res dispatch.StartResult
	decodeJSON(t, resp, &res)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if res.JobID == "" || res.Total != 2 {
		t.Fatalf("result = %+v", res)
	}
	if len(env.disp.started) != 1 {
		t.Fatalf("started = %d jobs", len(env.disp.started))
	}
	req := env.disp.started[0]
	if req.Bundle != "com.example.app" || req.DevKey != "k-123" || req.Days != 2 || req.FileName != "batch.csv" {
		t.Fatalf("request = %+v", req)
	}
	if req.Records[1]["advertising_id"] != "adv-2" {
		t.Fatalf("records = %+v", req.Records)
	}
}

func TestUploadValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ck := env.login(t)

	tests := []struct {
		name   string
		fields map[string]string
		csv    string
	}{
		{"missing bundle", map[string]string{"devKey": "k", "days": "1"}, "a\n1\n"},
		{"missing devKey", map[string]string{"bundle": "b", "days": "1"}, "a\n1\n"},
		{"bad days", map[string]string{"bundle": "b", "devKey": "k", "days": "zero"}, "a\n1\n"},
		{"negative days", map[string]string{"bundle": "b", "devKey": "k", "days": "-1"}, "a\n1\n"},
		{"no file", map[string]string{"bundle": "b", "devKey": "k", "days": "1"}, ""},
		{"empty csv", map[string]string{"bundle": "b", "devKey": "k", "days": "1"}, "a\n"},
	}
	for _, tt := range tests {
		resp := uploadRequest(t, env.srv.URL, ck, tt.fields, tt.csv)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", tt.name, resp.StatusCode)
		}
	}
	if len(env.disp.started) != 0 {
		t.Fatalf("invalid uploads started %d jobs", len(env.disp.started))
	}
}

func TestUploadDispatcherError(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ck := env.login(t)
	env.disp.startErr = errors.New("empty batch")

	resp := uploadRequest(t, env.srv.URL, ck, map[string]string{
		"bundle": "b", "devKey": "k", "days": "1",
	}, "a\n1\n")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
