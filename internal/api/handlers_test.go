package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/freshalert/freshagent/internal/checkpoint"
	"github.com/freshalert/freshagent/internal/compact"
	"github.com/freshalert/freshagent/internal/config"
	"github.com/freshalert/freshagent/internal/engine"
	"github.com/freshalert/freshagent/internal/llm"
	"github.com/freshalert/freshagent/internal/session"
	"github.com/freshalert/freshagent/internal/tools"
	"github.com/freshalert/freshagent/internal/turn"
	"github.com/freshalert/freshagent/internal/vision"
)

// fakeLLM answers every chat call with a fixed reply or error.
type fakeLLM struct {
	reply string
	err   error
}

func (f *fakeLLM) Chat(ctx context.Context, model string, messages []llm.Message, toolDefs []map[string]any) (*llm.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: f.reply}}, nil
}

func newTestServer(t *testing.T, client llm.Client) (*Server, *session.Store) {
	t.Helper()
	sessions := session.NewStore()
	eng := engine.New(
		client,
		"test-model",
		tools.NewRegistry(nil, nil),
		vision.NewPreprocessor(client, "test-model", config.VisionConfig{}, nil),
		compact.NewCompactor(client, "test-model", nil),
		config.EngineConfig{CompactionThreshold: 8},
		"test system prompt",
		slog.Default(),
	)
	return NewServer("", 0, eng, sessions, slog.Default()), sessions
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestHandleMessage(t *testing.T) {
	srv, sessions := newTestServer(t, &fakeLLM{reply: "your milk expires tomorrow"})

	w := postJSON(t, srv.handleMessage, `{"session_id":"conv-1","message":"what expires soon?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}

	var resp messageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionID != "conv-1" || resp.Reply != "your milk expires tomorrow" {
		t.Errorf("unexpected response: %+v", resp)
	}

	sess := sessions.Peek("conv-1")
	if sess == nil || len(sess.Turns) != 2 {
		t.Error("session not updated by invocation")
	}
}

func TestHandleMessageGeneratesSessionID(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLLM{reply: "hi"})

	w := postJSON(t, srv.handleMessage, `{"message":"hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp messageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionID == "" {
		t.Error("no session id generated")
	}
}

func TestHandleMessageValidation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLLM{reply: "unused"})

	if w := postJSON(t, srv.handleMessage, `{not json`); w.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: status = %d", w.Code)
	}
	if w := postJSON(t, srv.handleMessage, `{"session_id":"x"}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty message: status = %d", w.Code)
	}
	if w := postJSON(t, srv.handleMessage, `{"message":"x","images":[{"data":"!!!not-base64"}]}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad base64: status = %d", w.Code)
	}
}

func TestHandleMessageUpstreamFailure(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLLM{err: &llm.UpstreamError{Provider: "openai", Status: 500}})

	w := postJSON(t, srv.handleMessage, `{"message":"hello"}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
	if !strings.Contains(w.Body.String(), "model provider error") {
		t.Errorf("unexpected body: %s", w.Body)
	}
}

func TestHandleSessionGet(t *testing.T) {
	srv, sessions := newTestServer(t, &fakeLLM{reply: "ok"})

	s, release := sessions.Acquire("conv-9")
	s.Append(turn.NewHuman("hi"))
	s.RollingSummary = "user likes pasta"
	release()

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/conv-9", nil)
	req.SetPathValue("id", "conv-9")
	w := httptest.NewRecorder()
	srv.handleSessionGet(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["rolling_summary"] != "user likes pasta" {
		t.Errorf("summary missing: %v", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/sessions/nope", nil)
	req.SetPathValue("id", "nope")
	w = httptest.NewRecorder()
	srv.handleSessionGet(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing session: status = %d", w.Code)
	}
}

func TestHandleSessionLedger(t *testing.T) {
	srv, sessions := newTestServer(t, &fakeLLM{reply: "ok"})

	s, release := sessions.Acquire("conv-2")
	s.Ledger.Track("c1", "search_product", nil)
	s.Ledger.MarkCompleted("c1", "found it")
	release()

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/conv-2/ledger", nil)
	req.SetPathValue("id", "conv-2")
	w := httptest.NewRecorder()
	srv.handleSessionLedger(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		SessionID string `json:"session_id"`
		Records   []struct {
			ToolCallID string `json:"tool_call_id"`
			Status     string `json:"status"`
		} `json:"records"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Records) != 1 || body.Records[0].Status != "completed" {
		t.Errorf("ledger not exposed: %+v", body)
	}
}

func TestSessionReadsSnapshotUnderOwnership(t *testing.T) {
	srv, sessions := newTestServer(t, &fakeLLM{reply: "ok"})

	s, release := sessions.Acquire("busy")
	s.Append(turn.NewHuman("first"))
	release()

	// A writer owning the session must never race the read endpoints;
	// the race detector flags any regression to live-pointer serialization.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			s, release := sessions.Acquire("busy")
			s.Append(turn.NewHuman("x"))
			s.Ledger.Track("c", "search_product", nil)
			release()
		}
	}()

	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/sessions/busy", nil)
		req.SetPathValue("id", "busy")
		w := httptest.NewRecorder()
		srv.handleSessionGet(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("session get: status = %d", w.Code)
		}

		req = httptest.NewRequest(http.MethodGet, "/v1/sessions/busy/ledger", nil)
		req.SetPathValue("id", "busy")
		w = httptest.NewRecorder()
		srv.handleSessionLedger(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("ledger get: status = %d", w.Code)
		}
	}

	close(stop)
	wg.Wait()
}

func TestCheckpointEndpoints(t *testing.T) {
	srv, sessions := newTestServer(t, &fakeLLM{reply: "ok"})

	// Without a checkpointer the endpoints are disabled.
	w := httptest.NewRecorder()
	srv.handleCheckpointCreate(w, httptest.NewRequest(http.MethodPost, "/v1/checkpoint", strings.NewReader("")))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled create: status = %d", w.Code)
	}

	store, err := checkpoint.Open(filepath.Join(t.TempDir(), "cp.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	srv.SetCheckpointer(checkpoint.NewCheckpointer(store, sessions, checkpoint.Config{}, nil))

	s, release := sessions.Acquire("conv-1")
	s.Append(turn.NewHuman("hi"))
	release()

	w = httptest.NewRecorder()
	srv.handleCheckpointCreate(w, httptest.NewRequest(http.MethodPost, "/v1/checkpoint", strings.NewReader(`{"note":"manual test"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("create: status = %d: %s", w.Code, w.Body)
	}

	w = httptest.NewRecorder()
	srv.handleCheckpointList(w, httptest.NewRequest(http.MethodGet, "/v1/checkpoints", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list: status = %d", w.Code)
	}
	var body struct {
		Checkpoints []struct {
			Note string `json:"note"`
		} `json:"checkpoints"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Checkpoints) != 1 || body.Checkpoints[0].Note != "manual test" {
		t.Errorf("checkpoint not listed: %+v", body)
	}
}
