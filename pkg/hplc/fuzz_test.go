// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hplc

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func randomData(rng *rand.Rand) []byte {
	data := make([]byte, rng.Intn(MaxDataSize+1))
	rng.Read(data)
	return data
}

// Any valid frame decodes to exactly one frame with the same fields
func TestFuzzDecoderRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	d := NewDecoder()

	for i := 0; i < getFuzzRounds(); i++ {
		code := byte(rng.Intn(256))
		data := randomData(rng)
		raw, err := Encode(code, data)
		if err != nil {
			t.Fatalf("round %d: encode: %v", i, err)
		}

		frames := d.Decode(raw)
		if len(frames) != 1 {
			t.Fatalf("round %d: got %d frames, want 1", i, len(frames))
		}
		f := frames[0]
		if f.ControlCode() != code || f.Length() != len(data) {
			t.Fatalf("round %d: got code 0x%02X len %d, want 0x%02X len %d",
				i, f.ControlCode(), f.Length(), code, len(data))
		}
		for j, b := range data {
			if f.DataByte(j) != b {
				t.Fatalf("round %d: data byte %d mismatch", i, j)
			}
		}
	}
}

// Random noise never panics, and a valid frame after noise plus a
// preamble-breaking byte is always recovered
func TestFuzzDecoderNoise(t *testing.T) {
	rng := newFuzzRng(t)

	for i := 0; i < getFuzzRounds(); i++ {
		d := NewDecoder()
		noise := make([]byte, rng.Intn(600))
		rng.Read(noise)
		d.Decode(noise)

		// Flush whatever partial frame the noise left behind
		for j := 0; j < MaxFrameSize && d.State() != StateAwaitPreamble; j++ {
			d.DecodeByte(0x00)
		}
		d.DecodeByte(0x00)

		raw, _ := Encode(CodeHeartbeat, []byte{byte(i)})
		frames := d.Decode(raw)
		if len(frames) != 1 {
			t.Fatalf("round %d: got %d frames after noise, want 1", i, len(frames))
		}
	}
}
