// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hplc

// State is a frame decoder state
type State int

// Decoder states
const (
	StateAwaitPreamble State = iota
	StateAwaitHeader
	StateControl
	StateLength
	StateData
	StateChecksum
	StateTerminator
)

func (s State) String() string {
	switch s {
	case StateAwaitPreamble:
		return "AwaitPreamble"
	case StateAwaitHeader:
		return "AwaitHeader"
	case StateControl:
		return "Control"
	case StateLength:
		return "Length"
	case StateData:
		return "Data"
	case StateChecksum:
		return "Checksum"
	case StateTerminator:
		return "Terminator"
	default:
		return "Unknown"
	}
}

// DecoderStats counts decoder outcomes since creation
type DecoderStats struct {
	Frames         uint64
	ChecksumErrors uint64
	FramingErrors  uint64
}

// Decoder implements the frame decoder state machine. A Decoder belongs to
// exactly one serial channel and is not safe for concurrent use.
type Decoder struct {
	state   State
	plain   bool
	buffer  [MaxFrameSize]byte
	index   int
	dataEnd int
	sum     byte
	stats   DecoderStats
}

// NewDecoder creates a decoder for checksummed frames
func NewDecoder() *Decoder {
	return &Decoder{}
}

// NewPlainDecoder creates a decoder for frames without a checksum byte,
// as sent by the touch display.
func NewPlainDecoder() *Decoder {
	return &Decoder{plain: true}
}

// Reset returns the decoder to StateAwaitPreamble
func (d *Decoder) Reset() {
	d.state = StateAwaitPreamble
	d.index = 0
	d.dataEnd = 0
	d.sum = 0
}

// State returns the current decoder state
func (d *Decoder) State() State {
	return d.state
}

// Stats returns a snapshot of the decoder counters
func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

// accept appends b to the frame buffer. Preamble bytes do not count
// towards the checksum.
func (d *Decoder) accept(b byte) {
	d.buffer[d.index] = b
	d.index++
	if d.state != StateAwaitPreamble {
		d.sum += b
	}
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns the completed frame, or nil if no frame was completed by b.
// Malformed input is discarded and never reported as an error.
func (d *Decoder) DecodeByte(b byte) *Frame {
	switch d.state {
	case StateAwaitPreamble:
		if b != PreambleByte {
			d.Reset()
			return nil
		}
		d.accept(b)
		if d.index == PreambleLength {
			d.state = StateAwaitHeader
		}

	case StateAwaitHeader:
		if b != HeaderByte {
			d.stats.FramingErrors++
			d.Reset()
			return nil
		}
		d.accept(b)
		d.state = StateControl

	case StateControl:
		d.accept(b)
		d.state = StateLength

	case StateLength:
		d.accept(b)
		// index of the last data byte
		d.dataEnd = PreambleLength + 1 + 1 + int(b)
		if b == 0 {
			d.afterData()
		} else {
			d.state = StateData
		}

	case StateData:
		d.accept(b)
		if d.index > d.dataEnd {
			d.afterData()
		}

	case StateChecksum:
		if b != d.sum {
			d.stats.ChecksumErrors++
			d.Reset()
			return nil
		}
		d.accept(b)
		d.state = StateTerminator

	case StateTerminator:
		var f *Frame
		if b == TerminatorByte {
			d.accept(b)
			raw := make([]byte, d.index)
			copy(raw, d.buffer[:d.index])
			f = frameFromRaw(raw, d.plain)
			d.stats.Frames++
		} else {
			d.stats.FramingErrors++
		}
		d.Reset()
		return f
	}
	return nil
}

func (d *Decoder) afterData() {
	if d.plain {
		d.state = StateTerminator
	} else {
		d.state = StateChecksum
	}
}

// Decode feeds every byte of p through the decoder and returns the frames
// completed along the way.
func (d *Decoder) Decode(p []byte) []*Frame {
	var frames []*Frame
	for _, b := range p {
		if f := d.DecodeByte(b); f != nil {
			frames = append(frames, f)
		}
	}
	return frames
}
