package tools

import (
	"fmt"

	"github.com/teslashibe/go-edgeassist/pkg/inference"
)

// Bindings assigns a capability to every tool ID.
type Bindings struct {
	SetLight           Capability
	EnvironmentMetrics Capability
	PlayMusic          Capability
	PauseResume        Capability
	StopMusic          Capability
	IdentifySong       Capability
}

func (b Bindings) get(id ID) Capability {
	switch id {
	case SetLight:
		return b.SetLight
	case EnvironmentMetrics:
		return b.EnvironmentMetrics
	case PlayMusic:
		return b.PlayMusic
	case PauseResume:
		return b.PauseResume
	case StopMusic:
		return b.StopMusic
	case IdentifySong:
		return b.IdentifySong
	}
	return nil
}

// Registry resolves tool names to definitions and capabilities. It is built
// once at startup and never changes.
type Registry struct {
	caps [numTools]Capability
}

// NewRegistry checks that every tool is bound.
func NewRegistry(b Bindings) (*Registry, error) {
	r := &Registry{}
	for id := ID(0); id < numTools; id++ {
		c := b.get(id)
		if c == nil {
			return nil, fmt.Errorf("tools: no capability bound for %s", id)
		}
		r.caps[id] = c
	}
	return r, nil
}

// Resolve returns the definition and capability for a wire name.
func (r *Registry) Resolve(name string) (Definition, Capability, bool) {
	id, ok := Lookup(name)
	if !ok {
		return Definition{}, nil, false
	}
	return catalog[id], r.caps[id], true
}

// Definitions returns every advertised definition in catalog order.
func (r *Registry) Definitions() []Definition {
	return Definitions()
}

// Tools returns the definitions in inference wire form.
func (r *Registry) Tools() []inference.Tool {
	out := make([]inference.Tool, numTools)
	for id := ID(0); id < numTools; id++ {
		out[id] = catalog[id].Tool()
	}
	return out
}
