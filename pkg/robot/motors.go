// Package robot provides the device side of the arm: poses, the ASCII wire
// protocol and the serial links that carry it.
package robot

// NumMotors is the number of motors on the arm.
const NumMotors = 4

// Motor targets are raw 10-bit values.
const (
	MotorMin = 0
	MotorMax = 1023
	MotorMid = 512
)

// MotorName identifies a motor in the arm.
type MotorName string

// Motor names, in wire order.
const (
	Motor1 MotorName = "motor_1"
	Motor2 MotorName = "motor_2"
	Motor3 MotorName = "motor_3"
	Motor4 MotorName = "motor_4"
)

// AllMotors returns all motor names in order (matching the SET/POT field order).
func AllMotors() []MotorName {
	return []MotorName{
		Motor1,
		Motor2,
		Motor3,
		Motor4,
	}
}

// clampMotor limits v to [MotorMin, MotorMax].
func clampMotor(v int) int {
	return min(max(v, MotorMin), MotorMax)
}
