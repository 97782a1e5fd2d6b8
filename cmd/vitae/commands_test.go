package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/vitae/internal/config"
)

type recordedRequest struct {
	Method   string
	Path     string
	Body     string
	Auth     string
	FileName string
	FileData string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Auth:   r.Header.Get("Authorization"),
		}
		if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
			if f, hdr, err := r.FormFile("file"); err == nil {
				var buf bytes.Buffer
				buf.ReadFrom(f)
				rec.FileName, rec.FileData = hdr.Filename, buf.String()
				f.Close()
			}
		} else {
			var body bytes.Buffer
			body.ReadFrom(r.Body)
			rec.Body = body.String()
		}
		ts.requests = append(ts.requests, rec)

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// useServer points every command at ts for the duration of the test.
func useServer(t *testing.T, ts *testServer) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = old })
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestIngestCommand_UploadsFile(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /resume-parsing": `{"fileName":"cv.pdf","fileSize":8,"structuring":{"status":"ok"},"stored":{"experiences":2,"projects":1},"duplicates":{"experiences":0,"projects":0},"ingestionId":"run-1"}`,
	})
	useServer(t, ts)

	path := filepath.Join(t.TempDir(), "cv.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := execute(t, "ingest", path); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Path != "/resume-parsing" || r.Method != http.MethodPost {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}
	if r.FileName != "cv.pdf" || r.FileData != "%PDF-1.4" {
		t.Errorf("file = %q %q", r.FileName, r.FileData)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
}

func TestIngestCommand_MissingArgs(t *testing.T) {
	err := execute(t, "ingest")
	if err == nil {
		t.Fatal("expected error for missing args")
	}
	if !strings.Contains(err.Error(), "arg") {
		t.Errorf("error = %q, want it to mention args", err.Error())
	}
}

func TestIngestCommand_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Error processing file","details":"no text could be extracted from the file"}`))
	}))
	defer srv.Close()
	useServer(t, &testServer{server: srv})

	path := filepath.Join(t.TempDir(), "blank.pdf")
	os.WriteFile(path, []byte("x"), 0o644)

	err := execute(t, "ingest", path)
	if err == nil || !strings.Contains(err.Error(), "no text could be extracted") {
		t.Errorf("error = %v, want server details", err)
	}
}

func TestUploadCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /upload": `{"message":"Success","filename":"my_cv.pdf"}`,
	})
	useServer(t, ts)

	path := filepath.Join(t.TempDir(), "my cv.pdf")
	os.WriteFile(path, []byte("data"), 0o644)

	if err := execute(t, "upload", path); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if ts.requests[0].FileName != "my cv.pdf" {
		t.Errorf("file name = %q", ts.requests[0].FileName)
	}
}

func TestListCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /experiences": `[{"id":"abc123","record":{"role":"Analyst","organization":"Acme","location":"","date_range":"2023","achievements":["x"]}}]`,
		"GET /projects":    `[]`,
	})
	useServer(t, ts)

	if err := execute(t, "list", "experiences"); err != nil {
		t.Fatalf("list experiences: %v", err)
	}
	if err := execute(t, "list", "projects"); err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(ts.requests) != 2 || ts.requests[0].Path != "/experiences" || ts.requests[1].Path != "/projects" {
		t.Errorf("requests = %+v", ts.requests)
	}

	if err := execute(t, "list", "skills"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestSearchCommand_EscapesQuery(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /search": `[{"id":"abc123","score":42,"record":{"role":"Analyst"}}]`,
	})
	useServer(t, ts)

	if err := execute(t, "search", "data", "&", "ops"); err != nil {
		t.Fatalf("search: %v", err)
	}
	if got := ts.requests[0].Path; got != "/search?kind=experience&q=data+%26+ops" {
		t.Errorf("path = %q", got)
	}
}

func TestDeleteCommand_ByID(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /projects/abc123": `{"success":true,"deleted":1}`,
	})
	useServer(t, ts)

	if err := execute(t, "delete", "project", "abc123"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if r := ts.requests[0]; r.Method != http.MethodDelete || r.Path != "/projects/abc123" {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}
}

func TestDeleteCommand_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	useServer(t, ts)

	err := execute(t, "delete", "experience", "missing")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v, want 404", err)
	}
}

func TestDeleteCommand_ByFields(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /experience/delete": `{"success":true}`,
	})
	useServer(t, ts)
	t.Cleanup(func() {
		for _, f := range []string{"role", "organization", "date-range"} {
			deleteCmd.Flags().Set(f, "")
		}
	})

	if err := execute(t, "delete", "experience", "--role", "Analyst", "--organization", "Acme", "--date-range", "2023"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["role"] != "Analyst" || body["organization"] != "Acme" || body["date_range"] != "2023" {
		t.Errorf("body = %+v", body)
	}
}

func TestDeleteCommand_Validation(t *testing.T) {
	if err := execute(t, "delete", "skill", "x"); err == nil {
		t.Error("expected error for unknown kind")
	}
	ts := newTestServer(t, nil)
	useServer(t, ts)
	if err := execute(t, "delete", "project"); err == nil {
		t.Error("expected error without id or fields")
	}
	if len(ts.requests) != 0 {
		t.Errorf("sent %d requests, want 0", len(ts.requests))
	}
}

func TestHistoryCommands(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /ingestions":       `[{"id":"0f3c2a9e-1111","created_at":"2024-06-01T10:00:00Z","file_name":"cv.pdf","status":"completed","structuring_status":"ok"}]`,
		"GET /ingestions/run-1": `{"id":"run-1","file_name":"cv.pdf","status":"failed","error":"boom"}`,
	})
	useServer(t, ts)

	if err := execute(t, "history", "list"); err != nil {
		t.Fatalf("history list: %v", err)
	}
	if err := execute(t, "history", "show", "run-1"); err != nil {
		t.Fatalf("history show: %v", err)
	}
	if ts.requests[0].Path != "/ingestions?limit=20" || ts.requests[1].Path != "/ingestions/run-1" {
		t.Errorf("requests = %+v", ts.requests)
	}
}

func TestDecodeJSON_Errors(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := ts.client().get(context.Background(), "/nope")
	if err != nil {
		t.Fatal(err)
	}
	err = decodeJSON(resp, nil)
	if err == nil || err.Error() != "server returned 404: not found" {
		t.Errorf("error = %v", err)
	}
}

func TestClient_UploadMultipart(t *testing.T) {
	var gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		mr, err := r.MultipartReader()
		if err != nil {
			t.Errorf("MultipartReader: %v", err)
			return
		}
		part, err := mr.NextPart()
		if err != nil {
			t.Errorf("NextPart: %v", err)
			return
		}
		if part.FormName() != "file" {
			t.Errorf("form name = %q, want file", part.FormName())
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "cv.txt")
	os.WriteFile(path, []byte("hello"), 0o644)

	c := &apiClient{baseURL: srv.URL, httpClient: srv.Client()}
	resp, err := c.upload(context.Background(), "/upload", path)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !strings.HasPrefix(gotType, "multipart/form-data") {
		t.Errorf("content type = %q", gotType)
	}
}

func TestClient_UploadMissingFile(t *testing.T) {
	c := &apiClient{baseURL: "http://127.0.0.1:0", httpClient: http.DefaultClient}
	if _, err := c.upload(context.Background(), "/upload", "/does/not/exist"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestServerURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"127.0.0.1", "http://127.0.0.1:3000"},
		{"0.0.0.0", "http://127.0.0.1:3000"},
		{"", "http://127.0.0.1:3000"},
		{"::1", "http://[::1]:3000"},
	}
	for _, tt := range tests {
		cfg := config.Config{Server: config.ServerConfig{Host: tt.host, Port: 3000}}
		if got := serverURL(cfg); got != tt.want {
			t.Errorf("serverURL(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestPIDFile_RoundTrip(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "data"))
	if err := writePIDFile(path); err != nil {
		t.Fatal(err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("PID file still readable after remove")
	}
}

func TestColorize(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if result := colorize(colorRed, "hello"); result != "hello" {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}

	noColor = false
	if result := colorize(colorRed, "hello"); !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo wörld", 5); got != "héllo..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
}
