//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"chatrelay/internal/llm"
	"chatrelay/internal/store"
)

type fakeCompleter struct {
	mu     sync.Mutex
	result *llm.Result
	err    error
}

func (f *fakeCompleter) Complete(_ context.Context, _ llm.Request) (*llm.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		cp := *f.result
		return &cp, nil
	}
	return &llm.Result{Content: "fake reply", Model: "fake"}, nil
}

func newTestRouter(completer store.Completer) (*chi.Mux, *store.Store) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := store.New(completer, store.Config{}, logger)

	r := chi.NewRouter()
	NewConversationHandler(s).RegisterRoutes(r)
	return r, s
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader io.Reader = strings.NewReader(body)
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.NewDecoder(w.Body).Decode(&decoded); err != nil {
			t.Fatalf("failed to decode response body: %v", err)
		}
	}
	return w, decoded
}

func TestCreateConversation(t *testing.T) {
	r, _ := newTestRouter(&fakeCompleter{})

	w, body := doJSON(t, r, http.MethodPost, "/conversations", `{"title":"first chat"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if body["id"] == "" || body["id"] == nil {
		t.Error("expected a conversation id")
	}
	if body["title"] != "first chat" {
		t.Errorf("expected title kept, got %v", body["title"])
	}
}

func TestCreateConversationEmptyBody(t *testing.T) {
	r, _ := newTestRouter(&fakeCompleter{})

	w, _ := doJSON(t, r, http.MethodPost, "/conversations", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("title is optional; expected 201, got %d", w.Code)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	r, _ := newTestRouter(&fakeCompleter{})

	w, body := doJSON(t, r, http.MethodGet, "/conversations/ghost", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if body["error"] == nil {
		t.Error("expected an error message")
	}
}

func TestListConversations(t *testing.T) {
	r, s := newTestRouter(&fakeCompleter{})
	s.Create("a", nil)
	s.Create("b", nil)

	w, body := doJSON(t, r, http.MethodGet, "/conversations", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body["total"] != float64(2) {
		t.Errorf("expected total 2, got %v", body["total"])
	}
	if list, ok := body["conversations"].([]interface{}); !ok || len(list) != 2 {
		t.Errorf("expected 2 conversations, got %v", body["conversations"])
	}
}

func TestSendMessage(t *testing.T) {
	fake := &fakeCompleter{result: &llm.Result{Content: "Hi there", Model: "llama3", Tokens: 5}}
	r, s := newTestRouter(fake)
	conv := s.Create("", nil)

	w, body := doJSON(t, r, http.MethodPost, "/conversations/"+conv.ID+"/messages", `{"message":"Hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	assistant, ok := body["assistant_message"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected assistant_message, got %v", body)
	}
	if assistant["content"] != "Hi there" {
		t.Errorf("expected assistant content, got %v", assistant["content"])
	}
	if assistant["tokens"] != float64(5) {
		t.Errorf("expected 5 tokens, got %v", assistant["tokens"])
	}
	if body["message_count"] != float64(2) {
		t.Errorf("expected message_count 2, got %v", body["message_count"])
	}
}

func TestSendMessageEmpty(t *testing.T) {
	r, s := newTestRouter(&fakeCompleter{})
	conv := s.Create("", nil)

	w, _ := doJSON(t, r, http.MethodPost, "/conversations/"+conv.ID+"/messages", `{"message":"   "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty message, got %d", w.Code)
	}
}

func TestSendMessageUnknownConversation(t *testing.T) {
	r, _ := newTestRouter(&fakeCompleter{})

	w, _ := doJSON(t, r, http.MethodPost, "/conversations/ghost/messages", `{"message":"Hello"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown conversation, got %d", w.Code)
	}
}

func TestSendMessageSidecarFailureIsDegradedSuccess(t *testing.T) {
	fake := &fakeCompleter{err: &llm.UnavailableError{Attempts: 3, LastErr: errors.New("timeout")}}
	r, s := newTestRouter(fake)
	conv := s.Create("", nil)

	w, body := doJSON(t, r, http.MethodPost, "/conversations/"+conv.ID+"/messages", `{"message":"Hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("a sidecar outage must stay HTTP 200, got %d", w.Code)
	}

	assistant := body["assistant_message"].(map[string]interface{})
	if assistant["error"] != true {
		t.Error("expected error-flagged assistant message")
	}
	if assistant["content"] != store.Apology {
		t.Errorf("expected stable apology, got %v", assistant["content"])
	}
	if body["message_count"] != float64(2) {
		t.Errorf("history must still grow by 2, got %v", body["message_count"])
	}
}

func TestDeleteConversation(t *testing.T) {
	r, s := newTestRouter(&fakeCompleter{})
	conv := s.Create("", nil)

	w, _ := doJSON(t, r, http.MethodDelete, "/conversations/"+conv.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodDelete, "/conversations/"+conv.ID, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete expected 404, got %d", w.Code)
	}
}
