package robot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Line protocol keywords. Outbound: "SET m1 m2 m3 m4 mag\n".
// Inbound: "POT m1 m2 m3 m4\n".
const (
	CommandSet = "SET"
	CommandPot = "POT"
)

// ErrMalformedTelemetry is returned for any inbound line that is not a
// well-formed POT line.
var ErrMalformedTelemetry = errors.New("malformed telemetry")

// Telemetry holds the potentiometer readings of one POT line.
type Telemetry [NumMotors]int

// SetLine returns the exact SET command for p, newline included.
func (p Position) SetLine() string {
	l := p.List()
	return fmt.Sprintf("%s %d %d %d %d %d\n", CommandSet, l[0], l[1], l[2], l[3], l[4])
}

// ParseTelemetry parses a POT line. Surrounding whitespace is ignored.
func ParseTelemetry(line string) (Telemetry, error) {
	fields := strings.Fields(line)
	if len(fields) != NumMotors+1 || fields[0] != CommandPot {
		return Telemetry{}, fmt.Errorf("%w: %q", ErrMalformedTelemetry, line)
	}

	var t Telemetry
	for i, f := range fields[1:] {
		v, err := strconv.Atoi(f)
		if err != nil {
			return Telemetry{}, fmt.Errorf("%w: motor %d: %v", ErrMalformedTelemetry, i+1, err)
		}
		t[i] = v
	}
	return t, nil
}
