// Package httpclient implements net/HTTPClient: issues a GET for every URL
// received on REQUEST and forwards the response body on RESPONSE, or the
// error text on ERROR. Grounded on
// original_source/src/components/httpclient.rs, with its blocking
// `reqwest` client replaced by the standard library's net/http client
// (the idiomatic Go substitute; no pack repo reaches for a non-stdlib
// HTTP client for outbound requests).
package httpclient

import (
	"io"
	"net/http"
	"time"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/components/common"
	"github.com/flowd/flowd/internal/edge"
)

// Descriptor is net/HTTPClient's port contract.
func Descriptor() component.Descriptor {
	return component.Descriptor{
		Name:        "net/HTTPClient",
		Description: "Reads URLs and sends the response body out via RESPONSE or ERROR",
		Icon:        "globe",
		InPorts: []component.PortDescriptor{
			{Name: "REQUEST", Type: "any", Required: true, Description: "URLs, one per IP"},
		},
		OutPorts: []component.PortDescriptor{
			{Name: "RESPONSE", Type: "any", Required: true, Description: "response body if response is non-error"},
			{Name: "ERROR", Type: "any", Required: true, Description: "error responses in human-readable error format"},
		},
	}
}

type runner struct {
	req     []*edge.Consumer
	resp    []*component.OutSink
	errOut  []*component.OutSink
	client  *http.Client
	signals <-chan edge.Signal
	pong    chan<- edge.Signal
}

// New constructs an HTTPClient process. Satisfies component.Constructor.
func New(name string, ports component.Ports, signals <-chan edge.Signal, pong chan<- edge.Signal, notifier component.Notifier) (component.Runner, error) {
	return &runner{
		req:     ports.In["REQUEST"],
		resp:    ports.Out["RESPONSE"],
		errOut:  ports.Out["ERROR"],
		client:  &http.Client{Timeout: 30 * time.Second},
		signals: signals,
		pong:    pong,
	}, nil
}

func (r *runner) Run() {
	for {
		if common.HandleSignal(r.signals, r.pong) {
			return
		}

		progressed := false
		for _, cons := range r.req {
			payload, ok, abandoned := cons.TryPop()
			if ok {
				progressed = true
				r.doRequest(string(payload))
			}
			if abandoned {
				common.CloseOutputs(map[string][]*component.OutSink{"RESPONSE": r.resp, "ERROR": r.errOut})
				return
			}
		}
		if !progressed {
			time.Sleep(time.Millisecond)
		}
	}
}

func (r *runner) doRequest(url string) {
	resp, err := r.client.Get(url)
	if err != nil {
		common.Push(r.errOut, []byte(err.Error()))
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		common.Push(r.errOut, []byte(err.Error()))
		return
	}
	common.Push(r.resp, body)
}
