package robot

import (
	"encoding/json"
	"fmt"
)

// Position is a snapshot of the four motor targets and the magnet state.
// It is a value type; copies never share state.
type Position struct {
	Motors [NumMotors]int
	Magnet bool
}

// NewPosition builds a Position, clamping every motor to [MotorMin, MotorMax].
func NewPosition(m1, m2, m3, m4 int, magnet bool) Position {
	return Position{Motors: [NumMotors]int{m1, m2, m3, m4}, Magnet: magnet}.Clamped()
}

// DefaultHome is the neutral pose: every motor at mid-range, magnet off.
func DefaultHome() Position {
	return NewPosition(MotorMid, MotorMid, MotorMid, MotorMid, false)
}

// Clamped returns p with every motor limited to [MotorMin, MotorMax].
func (p Position) Clamped() Position {
	for i, v := range p.Motors {
		p.Motors[i] = clampMotor(v)
	}
	return p
}

// WithMotors returns a copy of p with the motor targets replaced.
func (p Position) WithMotors(motors [NumMotors]int) Position {
	p.Motors = motors
	return p.Clamped()
}

// List returns the interchange form [m1, m2, m3, m4, mag] with mag as 0 or 1.
func (p Position) List() [NumMotors + 1]int {
	c := p.Clamped()
	return [NumMotors + 1]int{c.Motors[0], c.Motors[1], c.Motors[2], c.Motors[3], magnetBit(c.Magnet)}
}

// PositionFromList parses the interchange form produced by List.
func PositionFromList(l []int) (Position, error) {
	if len(l) != NumMotors+1 {
		return Position{}, fmt.Errorf("position needs %d values, got %d", NumMotors+1, len(l))
	}
	mag := l[NumMotors]
	if mag != 0 && mag != 1 {
		return Position{}, fmt.Errorf("magnet must be 0 or 1, got %d", mag)
	}
	return NewPosition(l[0], l[1], l[2], l[3], mag == 1), nil
}

// MarshalJSON encodes p as a 5-element array.
func (p Position) MarshalJSON() ([]byte, error) {
	l := p.List()
	return json.Marshal(l[:])
}

// UnmarshalJSON decodes a 5-element array.
func (p *Position) UnmarshalJSON(data []byte) error {
	var l []int
	if err := json.Unmarshal(data, &l); err != nil {
		return err
	}
	pos, err := PositionFromList(l)
	if err != nil {
		return err
	}
	*p = pos
	return nil
}

// String renders p for display, e.g. "512,512,512,512, MAG=0".
func (p Position) String() string {
	l := p.List()
	return fmt.Sprintf("%d,%d,%d,%d, MAG=%d", l[0], l[1], l[2], l[3], l[4])
}

func magnetBit(on bool) int {
	if on {
		return 1
	}
	return 0
}
