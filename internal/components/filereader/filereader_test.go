package filereader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/edge"
)

func TestFileReaderForwardsContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello flowd"), 0o644))

	pathProd, pathCons := edge.New(4)
	outProd, outCons := edge.New(4)
	signals := edge.NewSignalChan()
	pong := make(chan edge.Signal, 1)

	ports := component.Ports{
		In:  map[string][]*edge.Consumer{"PATH": {pathCons}},
		Out: map[string][]*component.OutSink{"OUT": {{Producer: outProd}}},
	}
	r, err := New("F", ports, signals, pong, nil)
	require.NoError(t, err)
	go r.Run()

	pathProd.TryPush([]byte(path))

	require.Eventually(t, func() bool {
		payload, ok, _ := outCons.TryPop()
		if !ok {
			return false
		}
		assert.Equal(t, "hello flowd", string(payload))
		return true
	}, time.Second, time.Millisecond)
}

func TestFileReaderReportsMissingFile(t *testing.T) {
	pathProd, pathCons := edge.New(4)
	errProd, errCons := edge.New(4)
	signals := edge.NewSignalChan()
	pong := make(chan edge.Signal, 1)

	ports := component.Ports{
		In:  map[string][]*edge.Consumer{"PATH": {pathCons}},
		Out: map[string][]*component.OutSink{"ERROR": {{Producer: errProd}}},
	}
	r, err := New("F", ports, signals, pong, nil)
	require.NoError(t, err)
	go r.Run()

	pathProd.TryPush([]byte("/no/such/file"))

	require.Eventually(t, func() bool {
		_, ok, _ := errCons.TryPop()
		return ok
	}, time.Second, time.Millisecond)
}
