package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/higress-group/newsrag/search"
)

func TestEventJSON(t *testing.T) {
	b, err := json.Marshal(Complete("c1", "directInternalSearch", "답변 [1]", nil, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"stream_complete","fullAnswer":"답변 [1]","route":"directInternalSearch","conversationId":"c1"}`, string(b))

	b, err = json.Marshal(Chunk("삼성"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"stream_chunk","chunk":"삼성"}`, string(b))
}

func TestTerminal(t *testing.T) {
	tests := []struct {
		event Event
		want  bool
	}{
		{Progress("route", "dateFilteredSearch"), false},
		{Chunk("a"), false},
		{Reset("answer_synthesis", "generation restarted, attempt 2"), false},
		{Complete("", "", "a", []search.SourceRecord{{Index: 1}}, nil), true},
		{Failure("", "boom"), true},
	}
	for _, tt := range tests {
		t.Run(string(tt.event.Type), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.Terminal())
		})
	}
}

func TestWebSocketSinkSerializesWriters(t *testing.T) {
	const writers, perWriter = 8, 25
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		sink := NewWebSocketSink(conn, time.Second)
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perWriter; j++ {
					_ = sink.Send(Chunk("x"))
				}
			}()
		}
		wg.Wait()
		_ = sink.Send(Complete("c1", "", "done", nil, nil))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	chunks := 0
	for {
		var e Event
		require.NoError(t, conn.ReadJSON(&e))
		if e.Terminal() {
			assert.Equal(t, "done", e.FullAnswer)
			break
		}
		assert.Equal(t, EventStreamChunk, e.Type)
		chunks++
	}
	assert.Equal(t, writers*perWriter, chunks)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	var s Sink = &r
	require.NoError(t, s.Send(Progress("route", "x")))
	require.NoError(t, SinkFunc(r.Send).Send(Chunk("a")))
	assert.Equal(t, []EventType{EventProgress, EventStreamChunk}, r.Types())
}
