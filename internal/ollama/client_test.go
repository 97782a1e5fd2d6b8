package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// tagsJSON builds a /api/tags response with the given model names.
func tagsJSON(names ...string) []byte {
	type entry struct {
		Name string `json:"name"`
	}
	type resp struct {
		Models []entry `json:"models"`
	}
	r := resp{}
	for _, n := range names {
		r.Models = append(r.Models, entry{Name: n})
	}
	b, _ := json.Marshal(r)
	return b
}

func TestIsRunning_Up(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llama3.1:latest"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}
}

func TestIsRunning_Down(t *testing.T) {
	// Point at a closed server to simulate connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL)
	if c.IsRunning(context.Background()) {
		t.Error("IsRunning() = true, want false")
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llama3.1:latest", "qwen2.5:latest", "mistral:latest"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}

	if len(models) != 3 {
		t.Fatalf("got %d models, want 3", len(models))
	}

	want := []string{"llama3.1:latest", "qwen2.5:latest", "mistral:latest"}
	for i, w := range want {
		if models[i] != w {
			t.Errorf("models[%d] = %q, want %q", i, models[i], w)
		}
	}
}

func TestHasModel_Present(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llama3.1:latest", "qwen2.5:latest"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.HasModel(context.Background(), "llama3.1") {
		t.Error("HasModel(llama3.1) = false, want true")
	}
}

func TestHasModel_Absent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("qwen2.5:latest"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if c.HasModel(context.Background(), "llama3.1") {
		t.Error("HasModel(llama3.1) = true, want false")
	}
}

func TestChat_PlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		resp := chatResponse{
			Message: Message{Role: "assistant", Content: "pong"},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.Chat(context.Background(), "llama3.1", []Message{
		{Role: "user", Content: "ping"},
	}, nil, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if result != "pong" {
		t.Errorf("result = %q, want %q", result, "pong")
	}
}

func TestChat_SchemaAndOptions(t *testing.T) {
	var captured map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&captured)

		resp := chatResponse{
			Message: Message{Role: "assistant", Content: `{"experience":[],"projects":[]}`},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(srv.URL)
	schema := json.RawMessage(`{"type":"object","required":["experience","projects"]}`)

	result, err := c.Chat(context.Background(), "llama3.1", []Message{
		{Role: "system", Content: "structure this resume"},
		{Role: "user", Content: "Jane Doe, Analyst at Acme"},
	}, schema, &ChatOptions{Temperature: 0})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	format, ok := captured["format"].(map[string]any)
	if !ok {
		t.Fatalf("format = %T, want schema object", captured["format"])
	}
	if format["type"] != "object" {
		t.Errorf("format.type = %v, want object", format["type"])
	}
	opts, ok := captured["options"].(map[string]any)
	if !ok {
		t.Fatalf("options = %T, want object", captured["options"])
	}
	if temp, ok := opts["temperature"].(float64); !ok || temp != 0 {
		t.Errorf("options.temperature = %v, want 0", opts["temperature"])
	}
	if captured["stream"] != false {
		t.Errorf("stream = %v, want false", captured["stream"])
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		t.Errorf("response is not valid JSON: %v", err)
	}
}

func TestChat_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model \"nope\" not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Chat(context.Background(), "nope", []Message{{Role: "user", Content: "x"}}, nil, nil)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %q, want status and body", err)
	}
}

func TestPullModel_Progress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pull" {
			http.NotFound(w, r)
			return
		}

		// Verify request body.
		var reqBody pullRequest
		json.NewDecoder(r.Body).Decode(&reqBody)
		if reqBody.Name != "llama3.1" {
			t.Errorf("pull model = %q, want %q", reqBody.Name, "llama3.1")
		}

		// Stream progress lines as newline-delimited JSON.
		enc := json.NewEncoder(w)
		enc.Encode(PullProgress{Status: "downloading", Total: 1000, Completed: 500})
		enc.Encode(PullProgress{Status: "downloading", Total: 1000, Completed: 1000})
		enc.Encode(PullProgress{Status: "success"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	var progressCount int
	err := c.PullModel(context.Background(), "llama3.1", func(p PullProgress) {
		progressCount++
	})
	if err != nil {
		t.Fatalf("PullModel: %v", err)
	}

	if progressCount != 3 {
		t.Errorf("received %d progress updates, want 3", progressCount)
	}
}

func TestEnsureReady_OllamaDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL)
	err := EnsureReady(context.Background(), c, "llama3.1", io.Discard)
	if err == nil {
		t.Fatal("expected error when Ollama is down")
	}

	want := "Ollama is not running"
	if got := err.Error(); !strings.Contains(got, want) {
		t.Errorf("error = %q, want it to contain %q", got, want)
	}
}

func TestEnsureReady_PullsAndWarms(t *testing.T) {
	var pulled, warmed bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			if pulled {
				w.Write(tagsJSON("llama3.1:latest"))
			} else {
				w.Write(tagsJSON())
			}
		case "/api/pull":
			pulled = true
			json.NewEncoder(w).Encode(PullProgress{Status: "success"})
		case "/api/chat":
			warmed = true
			json.NewEncoder(w).Encode(chatResponse{Message: Message{Role: "assistant", Content: "pong"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var out strings.Builder
	if err := EnsureReady(context.Background(), New(srv.URL), "llama3.1", &out); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if !pulled || !warmed {
		t.Errorf("pulled=%v warmed=%v, want both", pulled, warmed)
	}
	if !strings.Contains(out.String(), "model llama3.1: warm") {
		t.Errorf("output = %q, want warm confirmation", out.String())
	}
}

func TestPullModel_UnknownModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"pull model manifest: file does not exist"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New(srv.URL).PullModel(context.Background(), "nope", nil)
	if err == nil {
		t.Fatal("expected error for failed pull")
	}
	if !strings.Contains(err.Error(), "pull nope") || !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q, want model name and status", err)
	}
}
