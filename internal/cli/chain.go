package cli

import "fmt"

// StageKind identifies which of -I/-P/-O introduced a StageSpec.
type StageKind int

const (
	KindInput StageKind = iota
	KindProcessor
	KindOutput
)

// StageSpec is one parsed -I/-P/-O token: a plugin name plus its own
// argument list, up to (but excluding) the next -I/-P/-O token.
type StageSpec struct {
	Kind StageKind
	Name string
	Args []string
}

// ParseChain parses the plugin chain grammar: a sequence of
// "-I name [opts]... -P name [opts]... -O name [opts]..." (spec.md §6). The
// chain must start with exactly one -I and end with exactly one -O; any
// number of -P stages (including zero) may appear between them.
func ParseChain(args []string) ([]StageSpec, error) {
	var specs []StageSpec
	i := 0
	for i < len(args) {
		tok := args[i]
		var kind StageKind
		switch tok {
		case "-I":
			kind = KindInput
		case "-P":
			kind = KindProcessor
		case "-O":
			kind = KindOutput
		default:
			return nil, fmt.Errorf("cli: expected -I/-P/-O, got %q", tok)
		}
		if i+1 >= len(args) {
			return nil, fmt.Errorf("cli: %s requires a plugin name", tok)
		}
		name := args[i+1]
		i += 2

		start := i
		for i < len(args) && args[i] != "-I" && args[i] != "-P" && args[i] != "-O" {
			i++
		}
		specs = append(specs, StageSpec{Kind: kind, Name: name, Args: append([]string{}, args[start:i]...)})
	}

	if err := validateChain(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

func validateChain(specs []StageSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("cli: empty plugin chain")
	}
	if specs[0].Kind != KindInput {
		return fmt.Errorf("cli: plugin chain must start with -I")
	}
	if specs[len(specs)-1].Kind != KindOutput {
		return fmt.Errorf("cli: plugin chain must end with -O")
	}
	for _, s := range specs[1 : len(specs)-1] {
		if s.Kind != KindProcessor {
			return fmt.Errorf("cli: only one -I and one -O stage are allowed, and they must be first/last")
		}
	}
	inputs, outputs := 0, 0
	for _, s := range specs {
		switch s.Kind {
		case KindInput:
			inputs++
		case KindOutput:
			outputs++
		}
	}
	if inputs != 1 || outputs != 1 {
		return fmt.Errorf("cli: plugin chain must have exactly one -I and one -O")
	}
	return nil
}
