// Package sandbox implements exec/Sandbox: runs the shell command carried
// by each packet on CMD inside a throwaway, network-isolated Docker
// container and forwards its stdout/stderr on STDOUT/STDERR. Grounded on
// original_source/src/components/cmd.rs for the inport/outport
// sub-process-streaming shape, and on
// Generativebots-ocx-backend-go-svc/internal/ghostpool/pool_manager.go
// for the gVisor-hardened container HostConfig (runsc runtime, no
// network, read-only rootfs) and its use of
// github.com/docker/docker/client.
package sandbox

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/components/common"
	"github.com/flowd/flowd/internal/edge"
)

// DefaultImage is the container image used to execute sandboxed commands
// when no image is otherwise configured.
const DefaultImage = "alpine:3.19"

// Descriptor is exec/Sandbox's port contract.
func Descriptor() component.Descriptor {
	return component.Descriptor{
		Name:        "exec/Sandbox",
		Description: "Runs a shell command inside an isolated container and forwards its STDOUT and STDERR.",
		Icon:        "terminal",
		InPorts: []component.PortDescriptor{
			{Name: "CMD", Type: "any", Required: true, Description: "shell command line to run, one per IP"},
		},
		OutPorts: []component.PortDescriptor{
			{Name: "STDOUT", Type: "any", Required: true, Description: "standard output lines from the sandboxed command"},
			{Name: "STDERR", Type: "any", Required: true, Description: "standard error lines from the sandboxed command"},
		},
	}
}

type runner struct {
	cmd     []*edge.Consumer
	stdout  []*component.OutSink
	stderr  []*component.OutSink
	image   string
	signals <-chan edge.Signal
	pong    chan<- edge.Signal
}

// New constructs a Sandbox process. Satisfies component.Constructor.
func New(name string, ports component.Ports, signals <-chan edge.Signal, pong chan<- edge.Signal, notifier component.Notifier) (component.Runner, error) {
	return &runner{
		cmd:     ports.In["CMD"],
		stdout:  ports.Out["STDOUT"],
		stderr:  ports.Out["STDERR"],
		image:   DefaultImage,
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
		for _, cons := range r.cmd {
			payload, ok, abandoned := cons.TryPop()
			if ok {
				progressed = true
				r.execute(string(payload))
			}
			if abandoned {
				common.CloseOutputs(map[string][]*component.OutSink{"STDOUT": r.stdout, "STDERR": r.stderr})
				return
			}
		}
		if !progressed {
			time.Sleep(time.Millisecond)
		}
	}
}

func (r *runner) execute(cmdLine string) {
	ctx := context.Background()

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		common.Push(r.stderr, []byte(err.Error()))
		return
	}
	defer cli.Close()

	hostConfig := &container.HostConfig{
		Runtime:        "runsc",
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		Resources: container.Resources{
			NanoCPUs: 1_000_000_000,
			Memory:   256 * 1024 * 1024,
		},
		Tmpfs: map[string]string{"/tmp": "rw,noexec,nosuid,size=32m"},
	}

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image: r.image,
		Cmd:   []string{"sh", "-c", cmdLine},
		Tty:   false,
	}, hostConfig, nil, nil, "")
	if err != nil {
		common.Push(r.stderr, []byte(err.Error()))
		return
	}
	defer cli.ContainerRemove(ctx, resp.ID, types.ContainerRemoveOptions{Force: true})

	if err := cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		common.Push(r.stderr, []byte(err.Error()))
		return
	}

	statusCh, errCh := cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			common.Push(r.stderr, []byte(err.Error()))
			return
		}
	case <-statusCh:
	}

	out, err := cli.ContainerLogs(ctx, resp.ID, types.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		common.Push(r.stderr, []byte(err.Error()))
		return
	}
	defer out.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, out); err != nil && err != io.EOF {
		common.Push(r.stderr, []byte(err.Error()))
	}
	if stdoutBuf.Len() > 0 {
		common.Push(r.stdout, stdoutBuf.Bytes())
	}
	if stderrBuf.Len() > 0 {
		common.Push(r.stderr, stderrBuf.Bytes())
	}
}
