// Package filereader implements io/FileReader: reads the file named by
// each packet on PATH and forwards its full contents on OUT, reporting
// read failures on ERROR instead of aborting the process. Grounded on
// original_source/src/components/filereader.rs, with its single NAMES
// inport and implicit-panic error handling split into PATH/ERROR per
// the ambient error-handling convention the rest of the leaf components
// follow.
package filereader

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/components/common"
	"github.com/flowd/flowd/internal/edge"
)

// Descriptor is io/FileReader's port contract.
func Descriptor() component.Descriptor {
	return component.Descriptor{
		Name:        "io/FileReader",
		Description: "Reads the contents of the given files and sends the contents.",
		Icon:        "file",
		InPorts: []component.PortDescriptor{
			{Name: "PATH", Type: "any", Required: true, Description: "filenames, one per IP"},
		},
		OutPorts: []component.PortDescriptor{
			{Name: "OUT", Type: "any", Required: true, Description: "contents of the given files"},
			{Name: "ERROR", Type: "any", Required: false, Description: "error message if a file could not be read"},
		},
	}
}

type runner struct {
	path    []*edge.Consumer
	out     []*component.OutSink
	errOut  []*component.OutSink
	signals <-chan edge.Signal
	pong    chan<- edge.Signal
}

// New constructs a FileReader process. Satisfies component.Constructor.
func New(name string, ports component.Ports, signals <-chan edge.Signal, pong chan<- edge.Signal, notifier component.Notifier) (component.Runner, error) {
	return &runner{path: ports.In["PATH"], out: ports.Out["OUT"], errOut: ports.Out["ERROR"], signals: signals, pong: pong}, nil
}

func (r *runner) Run() {
	for {
		if common.HandleSignal(r.signals, r.pong) {
			return
		}

		progressed := false
		for _, cons := range r.path {
			payload, ok, abandoned := cons.TryPop()
			if ok {
				progressed = true
				f, err := os.Open(string(payload))
				if err != nil {
					common.Push(r.errOut, []byte(err.Error()))
					continue
				}
				contents, err := readAll(f)
				f.Close()
				if err != nil {
					common.Push(r.errOut, []byte(err.Error()))
					continue
				}
				common.Push(r.out, contents)
			}
			if abandoned {
				common.CloseOutputs(map[string][]*component.OutSink{"OUT": r.out, "ERROR": r.errOut})
				return
			}
		}
		if !progressed {
			time.Sleep(time.Millisecond)
		}
	}
}

func readAll(f *os.File) ([]byte, error) {
	r := bufio.NewReader(f)
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				return buf, nil
			}
			return buf, err
		}
	}
}
