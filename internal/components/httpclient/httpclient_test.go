package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/edge"
)

func TestHTTPClientForwardsResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("pong"))
	}))
	defer srv.Close()

	reqProd, reqCons := edge.New(4)
	respProd, respCons := edge.New(4)
	errProd, errCons := edge.New(4)
	signals := edge.NewSignalChan()
	pong := make(chan edge.Signal, 1)

	ports := component.Ports{
		In: map[string][]*edge.Consumer{"REQUEST": {reqCons}},
		Out: map[string][]*component.OutSink{
			"RESPONSE": {{Producer: respProd}},
			"ERROR":    {{Producer: errProd}},
		},
	}
	r, err := New("H", ports, signals, pong, nil)
	require.NoError(t, err)
	go r.Run()

	reqProd.TryPush([]byte(srv.URL))

	require.Eventually(t, func() bool {
		payload, ok, _ := respCons.TryPop()
		if !ok {
			return false
		}
		assert.Equal(t, "pong", string(payload))
		return true
	}, time.Second, time.Millisecond)

	_, ok, _ := errCons.TryPop()
	assert.False(t, ok)
}

func TestHTTPClientReportsConnectionError(t *testing.T) {
	reqProd, reqCons := edge.New(4)
	errProd, errCons := edge.New(4)
	signals := edge.NewSignalChan()
	pong := make(chan edge.Signal, 1)

	ports := component.Ports{
		In:  map[string][]*edge.Consumer{"REQUEST": {reqCons}},
		Out: map[string][]*component.OutSink{"ERROR": {{Producer: errProd}}},
	}
	r, err := New("H", ports, signals, pong, nil)
	require.NoError(t, err)
	go r.Run()

	reqProd.TryPush([]byte("http://127.0.0.1:1"))

	require.Eventually(t, func() bool {
		_, ok, _ := errCons.TryPop()
		return ok
	}, time.Second, time.Millisecond)
}
