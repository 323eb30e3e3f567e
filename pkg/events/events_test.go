package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter(t *testing.T) {
	t.Run("handlers receive matching events", func(t *testing.T) {
		e := NewEmitter()
		var got []Event
		e.On(TypeTurnEnded, func(ev Event) { got = append(got, ev) })

		e.Emit(Event{Type: TypeTurnEnded, SessionID: "s1"})
		e.Emit(Event{Type: TypeCostUpdated, SessionID: "s1"})

		require.Len(t, got, 1)
		assert.Equal(t, TypeTurnEnded, got[0].Type)
	})

	t.Run("wildcard handler receives everything", func(t *testing.T) {
		e := NewEmitter()
		var count int
		e.On(Wildcard, func(Event) { count++ })

		e.Emit(Event{Type: TypeInteractionStarted})
		e.Emit(Event{Type: TypeHandoffOccurred})
		assert.Equal(t, 2, count)
	})

	t.Run("handlers run in registration order", func(t *testing.T) {
		e := NewEmitter()
		var order []string
		e.On(TypeTurnEnded, func(Event) { order = append(order, "first") })
		e.On(TypeTurnEnded, func(Event) { order = append(order, "second") })

		e.Emit(Event{Type: TypeTurnEnded})
		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("zero timestamp is stamped", func(t *testing.T) {
		e := NewEmitter()
		var got Event
		e.On(TypeTurnEnded, func(ev Event) { got = ev })

		e.Emit(Event{Type: TypeTurnEnded})
		assert.False(t, got.Timestamp.IsZero())
	})

	t.Run("off removes handlers", func(t *testing.T) {
		e := NewEmitter()
		var count int
		e.On(TypeTurnEnded, func(Event) { count++ })
		e.Off(TypeTurnEnded)

		e.Emit(Event{Type: TypeTurnEnded})
		assert.Equal(t, 0, count)
	})
}

func TestWebSocketSink(t *testing.T) {
	t.Run("attached client receives event feed", func(t *testing.T) {
		emitter := NewEmitter()
		sink := NewWebSocketSink(emitter)
		defer sink.Close()

		server := httptest.NewServer(http.HandlerFunc(sink.ServeHTTP))
		defer server.Close()

		wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.Eventually(t, func() bool {
			return sink.ClientCount() == 1
		}, time.Second, 10*time.Millisecond)

		emitter.Emit(Event{Type: TypeHandoffOccurred, SessionID: "s1", AgentID: "recon"})

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var got Event
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, TypeHandoffOccurred, got.Type)
		assert.Equal(t, "s1", got.SessionID)
		assert.Equal(t, "recon", got.AgentID)
	})

	t.Run("close detaches clients", func(t *testing.T) {
		emitter := NewEmitter()
		sink := NewWebSocketSink(emitter)

		server := httptest.NewServer(http.HandlerFunc(sink.ServeHTTP))
		defer server.Close()

		wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.Eventually(t, func() bool {
			return sink.ClientCount() == 1
		}, time.Second, 10*time.Millisecond)

		sink.Close()
		assert.Equal(t, 0, sink.ClientCount())
	})
}
