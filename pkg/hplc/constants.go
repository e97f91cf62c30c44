// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hplc

// Framing bytes
const (
	PreambleByte   = 0xFE
	PreambleLength = 4
	HeaderByte     = 0x68
	TerminatorByte = 0x16

	MaxDataSize = 255

	// preamble + header + control + length + data + checksum + terminator
	MaxFrameSize = PreambleLength + 1 + 1 + 1 + MaxDataSize + 1 + 1

	// Offset of the first data byte inside a raw frame
	dataOffset = PreambleLength + 3
)

// Control codes
const (
	// Coordinator → station
	CodeHeartbeat   = 0x66
	CodeSetOutput   = 0x11
	CodeSetMaxPower = 0x12
	CodePushSwitch  = 0x13 // [0x00/0x01]

	// Station → coordinator
	CodeTrip           = 0x13 // [addr6, idx]
	CodeCurrent        = 0x14 // [addr6, idx, raw24]
	CodePower          = 0x15 // [addr6, idx, raw24]
	CodeHeartbeatAck   = 0x88
	CodeSetOutputAck   = 0x91
	CodeSetMaxPowerAck = 0x92
	CodeTripAck        = 0x93
)

// Screen-link control codes (plain frames from the touch display)
const (
	ScreenOpenControl = 0x12 // [addr6]
	ScreenRename      = 0x41 // [addr6, name...]
	ScreenSetOutput   = 0x42 // [addr6, idx, state]
	ScreenSetMaxPower = 0x43 // [addr6, idx, lo, hi]
	ScreenLeave       = 0x44

	// Wi-Fi pages
	ScreenWifiScan     = 0x11
	ScreenWifiSelect   = 0x21
	ScreenWifiPassword = 0x22
	ScreenWifiConnect  = 0x23
	ScreenWifiStatus   = 0x31
	ScreenWifiForget   = 0x32
)

// Number of switched outputs on a strip
const OutputCount = 3

// ReplyCode returns the acknowledgment code expected for a reliably sent
// control code. Codes without a reply report false.
func ReplyCode(code byte) (byte, bool) {
	switch code {
	case CodeHeartbeat:
		return CodeHeartbeatAck, true
	case CodeSetOutput:
		return CodeSetOutputAck, true
	case CodeSetMaxPower:
		return CodeSetMaxPowerAck, true
	case CodeTrip:
		return CodeTripAck, true
	}
	return 0, false
}

// CodeName returns a short name for a control code
func CodeName(code byte) string {
	switch code {
	case CodeHeartbeat:
		return "HEARTBEAT"
	case CodeSetOutput:
		return "SET_OUTPUT"
	case CodeSetMaxPower:
		return "SET_MAX_POWER"
	case CodeTrip:
		return "TRIP/PUSH_SWITCH"
	case CodeCurrent:
		return "CURRENT"
	case CodePower:
		return "POWER"
	case CodeHeartbeatAck:
		return "HEARTBEAT_ACK"
	case CodeSetOutputAck:
		return "SET_OUTPUT_ACK"
	case CodeSetMaxPowerAck:
		return "SET_MAX_POWER_ACK"
	case CodeTripAck:
		return "TRIP_ACK"
	default:
		return "UNKNOWN"
	}
}
