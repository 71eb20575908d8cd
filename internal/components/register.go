// Package components wires every leaf component implementation into a
// component.Registry. Grounded on the teacher's single-file dependency
// wiring in cmd/api/main.go, adapted from HTTP handler registration to
// FBP component registration.
package components

import (
	"log/slog"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/components/count"
	"github.com/flowd/flowd/internal/components/cron"
	"github.com/flowd/flowd/internal/components/drop"
	"github.com/flowd/flowd/internal/components/filereader"
	"github.com/flowd/flowd/internal/components/httpclient"
	"github.com/flowd/flowd/internal/components/kerneltap"
	"github.com/flowd/flowd/internal/components/postgres"
	"github.com/flowd/flowd/internal/components/pubsub"
	"github.com/flowd/flowd/internal/components/redisclient"
	"github.com/flowd/flowd/internal/components/repeat"
	"github.com/flowd/flowd/internal/components/sandbox"
	"github.com/flowd/flowd/internal/components/websocketclient"
)

// source identifies this process as the one supplying every built-in
// component, mirroring the `getsource` protocol response's expectations
// for components that have no user-supplied source file.
const source = "builtin"

// RegisterBuiltins registers every component that ships with flowd, or
// only those named in allowed (SPEC_FULL.md §4.J's CLI `--components`
// flag) when it is non-empty — the JSON/YAML-loadable default-set
// selector the config loader's Components field also feeds.
// Called once at startup before the protocol server begins accepting
// connections.
func RegisterBuiltins(registry *component.Registry, allowed []string) error {
	type entry struct {
		desc component.Descriptor
		ctor component.Constructor
	}
	entries := []entry{
		{repeat.Descriptor(), repeat.New},
		{drop.Descriptor(), drop.New},
		{count.Descriptor(), count.New},
		{cron.Descriptor(), cron.New},
		{filereader.Descriptor(), filereader.New},
		{httpclient.Descriptor(), httpclient.New},
		{websocketclient.Descriptor(), websocketclient.New},
		{redisclient.Descriptor(), redisclient.New},
		{postgres.Descriptor(), postgres.New},
		{sandbox.Descriptor(), sandbox.New},
		{pubsub.Descriptor(), pubsub.New},
		{kerneltap.Descriptor(), kerneltap.New},
	}

	var want map[string]bool
	if len(allowed) > 0 {
		want = make(map[string]bool, len(allowed))
		for _, name := range allowed {
			want[name] = true
		}
	}

	registered := 0
	for _, e := range entries {
		if want != nil && !want[e.desc.Name] {
			continue
		}
		if err := registry.Register(e.desc, e.ctor, source); err != nil {
			return err
		}
		registered++
	}
	slog.Info("registered builtin components", "count", registered)
	return nil
}
