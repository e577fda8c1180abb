package schedule

import "fmt"

// Persona is the target performance shape a synthetic bot's trade schedule
// is designed to produce. It is a closed set: pairing behavior is dispatched
// through the policy table in scheduler.go, never by string comparison.
type Persona int

const (
	// Winner buys at local price minima and sells at later local maxima.
	Winner Persona = iota
	// Loser buys at local maxima and sells at later local minima.
	Loser
	// Mixed emits both winner-style and loser-style pairs, interleaved.
	Mixed
)

// ParsePersona converts a config string into a Persona.
func ParsePersona(s string) (Persona, error) {
	switch s {
	case "winner":
		return Winner, nil
	case "loser":
		return Loser, nil
	case "mixed":
		return Mixed, nil
	default:
		return 0, fmt.Errorf("unknown persona %q", s)
	}
}

func (p Persona) String() string {
	switch p {
	case Winner:
		return "winner"
	case Loser:
		return "loser"
	case Mixed:
		return "mixed"
	default:
		return fmt.Sprintf("persona(%d)", int(p))
	}
}
