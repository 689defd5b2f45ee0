// Package magarm controls a four-motor arm with an electromagnet over serial.
//
// The arm controller accepts "SET m1 m2 m3 m4 mag" lines. An optional input
// device (a small replica arm with potentiometers) reports "POT p1 p2 p3 p4"
// lines, which can be mirrored onto the arm in real time.
//
// # Installation
//
//	go install github.com/gwillem/magarm/cmd/magarm@latest
//
// # Usage
//
// First, run setup to pick the serial ports:
//
//	magarm setup
//
// Then start the interactive controller:
//
//	magarm teleoperate
//
// Recorded sequences can be replayed without the TUI:
//
//	magarm play positions.json
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/magarm: CLI with ports, setup, teleoperate and play commands
//   - pkg/robot: Poses, wire protocol, serial links and configuration
//   - pkg/teleop: Motion controller and telemetry reader
//   - pkg/sequence: Recorded sequences and playback
//   - internal/metrics: Prometheus collectors
package magarm
