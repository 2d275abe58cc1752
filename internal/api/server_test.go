package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Firdavs28033/tg-monitoring-back/internal/analytics"
	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
)

type fakeReader struct {
	messages []*models.MessageRecord
	err      error

	gotChatID int64
	gotLimit  int64
	gotOffset int64
}

func (f *fakeReader) ListMessages(_ context.Context, chatID int64, limit, offset int64) ([]*models.MessageRecord, error) {
	f.gotChatID, f.gotLimit, f.gotOffset = chatID, limit, offset
	return f.messages, f.err
}

func (f *fakeReader) CountMessages(context.Context, int64) (int64, error) {
	return int64(len(f.messages)), f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func do(t *testing.T, s *Server, target string) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealthAndReady(t *testing.T) {
	s := New(Config{}, &fakeReader{}, fakePinger{}, nil)

	resp, body := do(t, s, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, _ = do(t, s, "/ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := New(Config{}, &fakeReader{}, fakePinger{err: errors.New("no server")}, nil)
	resp, body = do(t, down, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "not ready")
}

func TestListMessages(t *testing.T) {
	reader := &fakeReader{messages: []*models.MessageRecord{
		{ID: 2, ChatID: -1001, Text: "second message", Timestamp: "2024-05-01T10:00:02Z", URL: "https://t.me/c/1/2"},
		{ID: 1, ChatID: -1001, Text: "first message", Timestamp: "2024-05-01T10:00:01Z", URL: "https://t.me/c/1/1"},
	}}
	s := New(Config{}, reader, fakePinger{}, nil)

	resp, body := do(t, s, "/api/v1/messages?chat_id=-1001&limit=1000&offset=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get("X-Total-Count"))

	assert.Equal(t, int64(-1001), reader.gotChatID)
	assert.Equal(t, int64(maxLimit), reader.gotLimit)
	assert.Equal(t, int64(5), reader.gotOffset)

	var items []map[string]any
	require.NoError(t, json.Unmarshal(body, &items))
	require.Len(t, items, 2)
	assert.Equal(t, "second message", items[0]["text"])
	assert.Equal(t, "https://t.me/c/1/2", items[0]["url"])
}

func TestListMessagesDefaults(t *testing.T) {
	reader := &fakeReader{}
	s := New(Config{}, reader, fakePinger{}, nil)

	resp, body := do(t, s, "/api/v1/messages")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
	assert.Equal(t, int64(0), reader.gotChatID)
	assert.Equal(t, int64(defaultLimit), reader.gotLimit)
}

func TestListMessagesBadInput(t *testing.T) {
	s := New(Config{}, &fakeReader{}, fakePinger{}, nil)

	for _, target := range []string{
		"/api/v1/messages?chat_id=abc",
		"/api/v1/messages?limit=0",
		"/api/v1/messages?offset=-1",
	} {
		resp, _ := do(t, s, target)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, target)
	}
}

func TestListMessagesStoreError(t *testing.T) {
	s := New(Config{}, &fakeReader{err: errors.New("db down")}, fakePinger{}, nil)

	resp, body := do(t, s, "/api/v1/messages")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), "failed to list messages")
}

func TestStats(t *testing.T) {
	counter := analytics.NewCounter()
	counter.Record("salom dunyo")
	counter.Record("salom")
	s := New(Config{StatsTop: 1}, &fakeReader{}, fakePinger{}, counter)

	resp, body := do(t, s, "/api/v1/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"processed":2,"top_words":[{"word":"salom","count":2}]}`, string(body))

	empty := New(Config{}, &fakeReader{}, fakePinger{}, nil)
	_, body = do(t, empty, "/api/v1/stats")
	assert.JSONEq(t, `{"processed":0,"top_words":[]}`, string(body))
}
