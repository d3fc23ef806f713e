package cli

import (
	"fmt"

	"github.com/zsiec/tsproc/internal/bitrate"
	"github.com/zsiec/tsproc/internal/stage"
)

// Deps are the shared collaborators a plugin constructor may need beyond
// its own argument list.
type Deps struct {
	Bitrate *bitrate.Monitor
	Joint   *stage.JointCoordinator
}

// InputFactory builds an Input plugin instance from its own arguments.
type InputFactory func(args []string, deps Deps) (stage.Input, error)

// ProcessorFactory builds a Processor plugin instance.
type ProcessorFactory func(args []string, deps Deps) (stage.Processor, error)

// OutputFactory builds an Output plugin instance.
type OutputFactory func(args []string, deps Deps) (stage.Output, error)

// Registry is a static map of plugin name -> constructor, standing in for
// the out-of-scope dynamic plugin loader (spec.md §6, §9: "the core
// receives stages as already-constructed values").
type Registry struct {
	inputs     map[string]InputFactory
	processors map[string]ProcessorFactory
	outputs    map[string]OutputFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		inputs:     map[string]InputFactory{},
		processors: map[string]ProcessorFactory{},
		outputs:    map[string]OutputFactory{},
	}
}

func (r *Registry) RegisterInput(name string, f InputFactory)         { r.inputs[name] = f }
func (r *Registry) RegisterProcessor(name string, f ProcessorFactory) { r.processors[name] = f }
func (r *Registry) RegisterOutput(name string, f OutputFactory)       { r.outputs[name] = f }

// BuildInput resolves and constructs an -I plugin.
func (r *Registry) BuildInput(spec StageSpec, deps Deps) (stage.Input, error) {
	f, ok := r.inputs[spec.Name]
	if !ok {
		return nil, fmt.Errorf("cli: unknown input plugin %q", spec.Name)
	}
	return f(spec.Args, deps)
}

// BuildProcessor resolves and constructs a -P plugin.
func (r *Registry) BuildProcessor(spec StageSpec, deps Deps) (stage.Processor, error) {
	f, ok := r.processors[spec.Name]
	if !ok {
		return nil, fmt.Errorf("cli: unknown processor plugin %q", spec.Name)
	}
	return f(spec.Args, deps)
}

// BuildOutput resolves and constructs an -O plugin.
func (r *Registry) BuildOutput(spec StageSpec, deps Deps) (stage.Output, error) {
	f, ok := r.outputs[spec.Name]
	if !ok {
		return nil, fmt.Errorf("cli: unknown output plugin %q", spec.Name)
	}
	return f(spec.Args, deps)
}

// Names lists registered plugin names for -l/--list-processors, filtered by
// which ("all", "input", "output", "packet", or "" meaning all).
func (r *Registry) Names(which string) map[string][]string {
	out := map[string][]string{}
	if which == "" || which == "all" || which == "input" {
		out["input"] = sortedKeys(r.inputs)
	}
	if which == "" || which == "all" || which == "packet" {
		out["packet"] = sortedKeys(r.processors)
	}
	if which == "" || which == "all" || which == "output" {
		out["output"] = sortedKeys(r.outputs)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
