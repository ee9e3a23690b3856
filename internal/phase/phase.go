package phase

import "fmt"

// Phase identifies one stage of a coaching dialogue. Phases are ordered and
// strictly forward-only: Framing < Exploration < Challenge < Synthesis.
type Phase int

const (
	Framing Phase = iota
	Exploration
	Challenge
	Synthesis
)

var phaseNames = [...]string{"framing", "exploration", "challenge", "synthesis"}

// String returns the lowercase phase name.
func (p Phase) String() string {
	if p < Framing || p > Synthesis {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Valid reports whether p is one of the four known phases.
func (p Phase) Valid() bool {
	return p >= Framing && p <= Synthesis
}

// Next returns the following phase. Synthesis is terminal and returns itself.
func (p Phase) Next() Phase {
	if p >= Synthesis {
		return Synthesis
	}
	return p + 1
}

// Terminal reports whether p is the last phase.
func (p Phase) Terminal() bool {
	return p == Synthesis
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("unknown phase: %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Parse converts a phase name to its Phase value.
func Parse(s string) (Phase, error) {
	for i, name := range phaseNames {
		if s == name {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("unknown phase: %q", s)
}
