// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bl0906 converts and accesses BL0906 energy metering registers.
package bl0906

import "math"

// Calibration holds the metering front-end parameters
type Calibration struct {
	Vref       float64 `mapstructure:"vref"`        // reference voltage (V)
	GainI      float64 `mapstructure:"gain_i"`      // current channel PGA gain
	GainV      float64 `mapstructure:"gain_v"`      // voltage channel PGA gain
	RLMilliohm float64 `mapstructure:"rl_milliohm"` // current shunt
	RFKiloohm  float64 `mapstructure:"rf_kiloohm"`  // voltage divider, upper leg
	RVKiloohm  float64 `mapstructure:"rv_kiloohm"`  // voltage divider, lower leg
}

// DefaultCalibration is the calibration of the reference strip hardware
var DefaultCalibration = Calibration{
	Vref:       1.097,
	GainI:      16,
	GainV:      1,
	RLMilliohm: 1,
	RFKiloohm:  1500,
	RVKiloohm:  1,
}

// Converter turns raw register values into physical units
type Converter struct {
	cal         Calibration
	currentCoef float64
	powerCoef   float64
}

// DefaultConverter uses DefaultCalibration
var DefaultConverter = NewConverter(DefaultCalibration)

// NewConverter computes the conversion coefficients for cal
func NewConverter(cal Calibration) *Converter {
	return &Converter{
		cal:         cal,
		currentCoef: cal.Vref / (12875 * cal.GainI * cal.RLMilliohm),
		powerCoef: cal.Vref * cal.Vref * (cal.RFKiloohm + cal.RVKiloohm) /
			(40.4125 * cal.RLMilliohm * cal.GainI * cal.RVKiloohm * cal.GainV * 1000),
	}
}

// Calibration returns the parameters the converter was built from
func (c *Converter) Calibration() Calibration {
	return c.cal
}

// CurrentCoefficient returns amperes per register LSB
func (c *Converter) CurrentCoefficient() float64 {
	return c.currentCoef
}

// PowerCoefficient returns watts per register LSB
func (c *Converter) PowerCoefficient() float64 {
	return c.powerCoef
}

// Current converts an unsigned 24-bit RMS current register to amperes.
// Bits above 23 are ignored.
func (c *Converter) Current(raw uint32) float64 {
	return float64(raw&0xFFFFFF) * c.currentCoef
}

// Power converts a signed 24-bit active power register to watts.
// The result is the magnitude regardless of power flow direction.
func (c *Converter) Power(raw uint32) float64 {
	v := int32(SignExtend24(raw))
	return math.Abs(float64(v) * c.powerCoef)
}

// PowerRaw returns the smallest register magnitude that converts to at
// least watts.
func (c *Converter) PowerRaw(watts float64) uint32 {
	return uint32(math.Ceil(watts / c.powerCoef))
}

// SignExtend24 extends bit 23 of raw through the upper byte
func SignExtend24(raw uint32) uint32 {
	raw &= 0xFFFFFF
	if raw&0x800000 != 0 {
		raw |= 0xFF000000
	}
	return raw
}

// Raw24 assembles register bytes, least significant first
func Raw24(b [3]byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

// Bytes24 splits a 24-bit register value, least significant first
func Bytes24(v uint32) [3]byte {
	return [3]byte{byte(v), byte(v >> 8), byte(v >> 16)}
}
