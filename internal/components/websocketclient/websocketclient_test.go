package websocketclient

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/edge"
)

func TestWebsocketClientRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		require.NoError(t, err)
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, append([]byte("echo:"), data...)))
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	confProd, confCons := edge.New(1)
	inProd, inCons := edge.New(4)
	outProd, outCons := edge.New(4)
	signals := edge.NewSignalChan()
	pong := make(chan edge.Signal, 1)

	ports := component.Ports{
		In:  map[string][]*edge.Consumer{"CONF": {confCons}, "IN": {inCons}},
		Out: map[string][]*component.OutSink{"OUT": {{Producer: outProd}}},
	}
	r, err := New("W", ports, signals, pong, nil)
	require.NoError(t, err)
	go r.Run()

	confProd.TryPush([]byte(wsURL))
	inProd.TryPush([]byte("hi"))

	require.Eventually(t, func() bool {
		payload, ok, _ := outCons.TryPop()
		if !ok {
			return false
		}
		assert.Equal(t, "echo:hi", string(payload))
		return true
	}, 2*time.Second, 5*time.Millisecond)
}
