// Package armlink drives a pair of serial-attached arm controllers, a base and
// a forearm, in lockstep.
//
// # Installation
//
//	go install github.com/gwillem/armlink/cmd/armlink@latest
//
// # Usage
//
// First, run setup to assign the serial ports:
//
//	armlink setup
//
// Then play a pose program:
//
//	armlink run wave.json
//
// or try it without hardware:
//
//	armlink run --sim wave.json
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/armlink: CLI with setup, run and send commands
//   - pkg/protocol: Wire format of commands and replies
//   - pkg/robot: Per-arm command queue, handshake, calibration, and configuration
//   - pkg/dual: Lockstep controller for the base and forearm
//   - pkg/transport: Non-blocking serial line transport
//   - pkg/firmware: Host-side controller emulator with simulated and Feetech actuators
//   - pkg/playback: Program player
//   - pkg/probe: Blocking one-shot exchanges
package armlink
