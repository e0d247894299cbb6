package webserver

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/malonaz/wgpt/internal/llm"
	"github.com/malonaz/wgpt/internal/session"
	"github.com/malonaz/wgpt/internal/thread"
)

type fakeStream struct {
	deltas []llm.Delta
	i      int
}

func (s *fakeStream) Recv() (*llm.Delta, error) {
	if s.i >= len(s.deltas) {
		return nil, io.EOF
	}
	delta := s.deltas[s.i]
	s.i++
	return &delta, nil
}

func (s *fakeStream) Close() {}

type fakeClient struct {
	deltas []llm.Delta
}

func (c *fakeClient) StreamChat(ctx context.Context, request *llm.ChatRequest) (llm.Stream, error) {
	return &fakeStream{deltas: c.deltas}, nil
}

func newTestServer(t *testing.T, deltas ...string) (*Server, *thread.Store) {
	t.Helper()
	store, err := thread.Open(filepath.Join(t.TempDir(), "threads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client := &fakeClient{}
	for _, delta := range deltas {
		client.deltas = append(client.deltas, llm.Delta{Text: delta})
	}
	chatSession, err := session.New(store, client, "gemini-3-flash-preview", time.Minute)
	require.NoError(t, err)

	server, err := NewServer(chatSession)
	require.NoError(t, err)
	return server, store
}

func sendTurnRequest(t *testing.T, threadID, text string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("text", text))
	require.NoError(t, writer.Close())

	request := httptest.NewRequest(http.MethodPost, "/threads/"+threadID+"/messages", &body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	return request
}

func TestIndex(t *testing.T) {
	server, _ := newTestServer(t)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	body := recorder.Body.String()
	require.Contains(t, body, thread.DefaultTitle)
	require.Contains(t, body, "gemini-3-flash-preview")
	require.Contains(t, body, "gemini-3-pro-preview")
}

func TestCreateThread(t *testing.T) {
	server, store := newTestServer(t)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/threads", nil))

	require.Equal(t, http.StatusSeeOther, recorder.Code)
	require.Equal(t, 2, store.Len())
}

func TestSelectUnknownThread(t *testing.T) {
	server, _ := newTestServer(t)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/threads/missing/select", nil))
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestDeleteThread(t *testing.T) {
	server, store := newTestServer(t)
	only := store.Threads()[0]

	request := httptest.NewRequest(http.MethodDelete, "/threads/"+only.ID, nil)
	request.Header.Set("X-Requested-With", "XMLHttpRequest")
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	// Deleting the last thread synthesizes a fresh one.
	require.Equal(t, 1, store.Len())
	require.NotEqual(t, only.ID, store.Threads()[0].ID)
}

func TestSelectModel(t *testing.T) {
	server, _ := newTestServer(t)
	form := url.Values{"model": {"pro"}}
	request := httptest.NewRequest(http.MethodPost, "/model", strings.NewReader(form.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	require.Equal(t, http.StatusSeeOther, recorder.Code)

	form = url.Values{"model": {"gpt-7"}}
	request = httptest.NewRequest(http.MethodPost, "/model", strings.NewReader(form.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder = httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSendTurnStreamsEvents(t *testing.T) {
	server, store := newTestServer(t, "Hi", " there")
	threadID := store.Threads()[0].ID

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, sendTurnRequest(t, threadID, "Hello"))

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "text/event-stream", recorder.Header().Get("Content-Type"))

	body := recorder.Body.String()
	require.Contains(t, body, `"type":"delta"`)
	require.Contains(t, body, `"text":"Hi"`)
	require.Contains(t, body, `"type":"done"`)
	// The OpenAI-compatible backend carries no grounding metadata; the field
	// is omitted rather than sent as null.
	require.NotContains(t, body, "groundingMetadata")

	fetched, ok := store.Get(threadID)
	require.True(t, ok)
	require.Len(t, fetched.Messages, 2)
	require.Equal(t, "Hi there", fetched.Messages[1].Parts[0].Text)
}

func TestSendTurnEmpty(t *testing.T) {
	server, store := newTestServer(t)
	threadID := store.Threads()[0].ID

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, sendTurnRequest(t, threadID, ""))
	require.Equal(t, http.StatusNoContent, recorder.Code)
}

func TestSendTurnUnknownThread(t *testing.T) {
	server, _ := newTestServer(t)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, sendTurnRequest(t, "missing", "hi"))
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}
