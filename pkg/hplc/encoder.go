// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hplc

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrDataTooLong is returned when a data field exceeds MaxDataSize
var ErrDataTooLong = errors.New("data field too long")

// Encode builds a complete checksummed wire frame
func Encode(code byte, data []byte) ([]byte, error) {
	return encode(code, data, false)
}

// EncodePlain builds a wire frame without a checksum byte
func EncodePlain(code byte, data []byte) ([]byte, error) {
	return encode(code, data, true)
}

func encode(code byte, data []byte, plain bool) ([]byte, error) {
	if len(data) > MaxDataSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrDataTooLong, len(data), MaxDataSize)
	}

	frame := make([]byte, 0, dataOffset+len(data)+2)
	for i := 0; i < PreambleLength; i++ {
		frame = append(frame, PreambleByte)
	}
	frame = append(frame, HeaderByte, code, byte(len(data)))
	frame = append(frame, data...)
	if !plain {
		frame = append(frame, Checksum(frame[PreambleLength:]))
	}
	frame = append(frame, TerminatorByte)

	return frame, nil
}

// EncodeSendCommand wraps a wire frame in the modem's AT+SEND envelope:
//
//	AT+SEND=<12 hex>,<frame length>,<frame bytes>\r\n
func EncodeSendCommand(target Address, frame []byte) []byte {
	out := make([]byte, 0, 24+len(frame))
	out = append(out, "AT+SEND="...)
	out = append(out, target.String()...)
	out = append(out, ',')
	out = strconv.AppendInt(out, int64(len(frame)), 10)
	out = append(out, ',')
	out = append(out, frame...)
	out = append(out, '\r', '\n')
	return out
}
