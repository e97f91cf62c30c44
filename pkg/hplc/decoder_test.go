// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hplc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEncode(t *testing.T, code byte, data []byte) []byte {
	t.Helper()
	frame, err := Encode(code, data)
	require.NoError(t, err)
	return frame
}

func TestDecoderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		code byte
		data []byte
	}{
		{"heartbeat no data", CodeHeartbeat, nil},
		{"set output", CodeSetOutput, []byte{0x01, 0x01}},
		{"set max power", CodeSetMaxPower, []byte{0x02, 0x64, 0x00}},
		{"telemetry", CodePower, []byte{1, 2, 3, 4, 5, 6, 1, 0xCD, 0xA7, 0x00}},
		{"max data", 0x7A, bytes.Repeat([]byte{0xFE}, MaxDataSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := mustEncode(t, tt.code, tt.data)
			d := NewDecoder()

			var frames []*Frame
			for _, b := range raw {
				if f := d.DecodeByte(b); f != nil {
					frames = append(frames, f)
				}
			}

			require.Len(t, frames, 1)
			f := frames[0]
			assert.Equal(t, tt.code, f.ControlCode())
			assert.Equal(t, len(tt.data), f.Length())
			if len(tt.data) > 0 {
				assert.Equal(t, tt.data, f.Data())
			}
			assert.Equal(t, raw, f.Raw())
			assert.Len(t, f.Raw(), PreambleLength+1+1+1+len(tt.data)+1+1)
			assert.Equal(t, StateAwaitPreamble, d.State())
			assert.Equal(t, uint64(1), d.Stats().Frames)
		})
	}
}

func TestDecoderChecksumCorruption(t *testing.T) {
	raw := mustEncode(t, CodeSetOutput, []byte{0x03, 0x00})
	csIndex := len(raw) - 2

	for delta := 1; delta < 256; delta++ {
		corrupt := append([]byte(nil), raw...)
		corrupt[csIndex] += byte(delta)

		d := NewDecoder()
		frames := d.Decode(corrupt)

		assert.Empty(t, frames, "delta %d", delta)
		assert.Equal(t, StateAwaitPreamble, d.State(), "delta %d", delta)
	}
}

func TestDecoderChecksumErrorCounted(t *testing.T) {
	raw := mustEncode(t, CodeHeartbeat, nil)
	raw[len(raw)-2] ^= 0xFF

	d := NewDecoder()
	assert.Empty(t, d.Decode(raw))
	assert.Equal(t, uint64(1), d.Stats().ChecksumErrors)
}

func TestDecoderTerminatorMismatch(t *testing.T) {
	raw := mustEncode(t, CodeSetOutput, []byte{0x01, 0x01})
	raw[len(raw)-1] = 0x17

	d := NewDecoder()
	assert.Empty(t, d.Decode(raw))
	assert.Equal(t, StateAwaitPreamble, d.State())
	assert.Equal(t, uint64(1), d.Stats().FramingErrors)
}

func TestDecoderZeroLengthSkipsData(t *testing.T) {
	d := NewDecoder()
	for _, b := range []byte{0xFE, 0xFE, 0xFE, 0xFE, 0x68, 0x66} {
		require.Nil(t, d.DecodeByte(b))
	}
	require.Nil(t, d.DecodeByte(0x00))
	assert.Equal(t, StateChecksum, d.State())
	require.Nil(t, d.DecodeByte(0x68+0x66))
	assert.Equal(t, StateTerminator, d.State())
	f := d.DecodeByte(0x16)
	require.NotNil(t, f)
	assert.Equal(t, byte(0x66), f.ControlCode())
	assert.Equal(t, 0, f.Length())
}

func TestDecoderResyncAfterGarbage(t *testing.T) {
	frame := mustEncode(t, CodeSetMaxPower, []byte{0x01, 0x10, 0x27})

	var stream []byte
	stream = append(stream, 0x00, 0x68, 0xFE, 0xFE, 0x12) // broken preamble
	stream = append(stream, 0xFE, 0xFE, 0xFE, 0xFE, 0x00) // missing header
	stream = append(stream, frame...)
	stream = append(stream, frame...)

	d := NewDecoder()
	frames := d.Decode(stream)

	require.Len(t, frames, 2)
	for _, f := range frames {
		assert.Equal(t, byte(CodeSetMaxPower), f.ControlCode())
		assert.Equal(t, []byte{0x01, 0x10, 0x27}, f.Data())
	}
}

func TestDecoderStateProgression(t *testing.T) {
	raw := mustEncode(t, CodeSetOutput, []byte{0x02, 0x01})
	want := []State{
		StateAwaitPreamble, StateAwaitPreamble, StateAwaitPreamble, StateAwaitHeader,
		StateControl, StateLength, StateData, StateData, StateChecksum,
		StateTerminator, StateAwaitPreamble,
	}

	d := NewDecoder()
	require.Len(t, raw, len(want))
	for i, b := range raw {
		d.DecodeByte(b)
		assert.Equal(t, want[i], d.State(), "after byte %d (0x%02X)", i, b)
	}
}

func TestPlainDecoder(t *testing.T) {
	raw, err := EncodePlain(ScreenSetOutput, []byte{1, 2, 3, 4, 5, 6, 2, 1})
	require.NoError(t, err)
	assert.Len(t, raw, PreambleLength+3+8+1)

	d := NewPlainDecoder()
	frames := d.Decode(raw)
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Plain())
	assert.Equal(t, byte(ScreenSetOutput), frames[0].ControlCode())
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 2, 1}, frames[0].Data())

	// A checksummed frame is not a valid plain frame
	assert.Empty(t, NewPlainDecoder().Decode(mustEncode(t, 0x44, []byte{0x01})))
}

func TestFrameDataIsCopy(t *testing.T) {
	f, err := NewFrame(CodeSetOutput, []byte{0x01, 0x01})
	require.NoError(t, err)

	data := f.Data()
	data[0] = 0x09
	assert.Equal(t, byte(0x01), f.DataByte(0))
	assert.Equal(t, byte(0), f.DataByte(5))
}
