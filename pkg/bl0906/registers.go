// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bl0906

import "fmt"

// UART command bytes
const (
	CmdRead  = 0x35
	CmdWrite = 0xCA
)

// Register addresses
const (
	RegCurrent1 = 0x0D
	RegCurrent2 = 0x0E
	RegCurrent3 = 0x0F
	RegPower1   = 0x23
	RegPower2   = 0x24
	RegPower3   = 0x25

	RegGain1     = 0x60
	RegGain2     = 0x61
	RegADCPD     = 0x93
	RegUsrWrprot = 0x9E
)

// InitSequence is written in order when the meter starts
var InitSequence = []struct {
	Name  string
	Addr  byte
	Value [3]byte
}{
	{"USR_WRPROT", RegUsrWrprot, [3]byte{0x55, 0x55, 0x00}}, // unlock user registers
	{"ADC_PD", RegADCPD, [3]byte{0xE2, 0x07, 0x00}},         // power down channels 4-6
	{"GAIN1", RegGain1, [3]byte{0x00, 0x33, 0x33}},          // I x16, V x1
	{"GAIN2", RegGain2, [3]byte{0x00, 0x33, 0x00}},
}

// CurrentRegister returns the RMS current register of output 1..3
func CurrentRegister(output int) (byte, error) {
	if output < 1 || output > 3 {
		return 0, fmt.Errorf("no current register for output %d", output)
	}
	return RegCurrent1 + byte(output-1), nil
}

// PowerRegister returns the active power register of output 1..3
func PowerRegister(output int) (byte, error) {
	if output < 1 || output > 3 {
		return 0, fmt.Errorf("no power register for output %d", output)
	}
	return RegPower1 + byte(output-1), nil
}

// Checksum is the inverted 8-bit sum of the address and data bytes
func Checksum(addr byte, data [3]byte) byte {
	return ^(addr + data[0] + data[1] + data[2])
}
