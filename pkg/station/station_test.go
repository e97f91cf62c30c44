// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package station

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/plcstrip/pkg/bl0906"
	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
	"github.com/Thermoquad/plcstrip/pkg/link/linktest"
	"github.com/Thermoquad/plcstrip/pkg/outputs"
	"github.com/Thermoquad/plcstrip/pkg/store"
)

var (
	stationAddr     = hplc.Address{0x00, 0x13, 0xD7, 0x63, 0x22, 0x02}
	coordinatorAddr = hplc.Address{0x00, 0x13, 0xD7, 0x63, 0x22, 0x01}
)

// fakeMeter returns fixed register values
type fakeMeter struct {
	regs   map[byte]uint32
	fail   map[byte]bool
	reads  int
	onRead func(addr byte)
}

func (m *fakeMeter) ReadRaw(addr byte) (uint32, error) {
	m.reads++
	if m.onRead != nil {
		m.onRead(addr)
	}
	if m.fail[addr] {
		return 0, bl0906.ErrReadTimeout
	}
	return m.regs[addr], nil
}

type fixture struct {
	node  *Node
	modem *linktest.Modem
	bank  *outputs.Bank
	store *store.Memory
	meter *fakeMeter
}

func newFixture(t *testing.T, push bool) *fixture {
	t.Helper()
	st := store.NewMemory()
	bank, err := outputs.Open(st.Namespace(outputs.Namespace), nil, nil)
	require.NoError(t, err)

	modem := linktest.NewModem()
	l := link.New(modem, link.Options{
		AckTimeout:   20 * time.Millisecond,
		PollInterval: time.Millisecond,
		LockWait:     time.Millisecond,
	}, nil)
	meter := &fakeMeter{regs: map[byte]uint32{}, fail: map[byte]bool{}}

	node := New(Config{
		Address:     stationAddr,
		Coordinator: coordinatorAddr,
		Interval:    5 * time.Millisecond,
		Push:        push,
	}, l, bank, meter, nil, nil)

	return &fixture{node: node, modem: modem, bank: bank, store: st, meter: meter}
}

func (fx *fixture) poll(t *testing.T) {
	t.Helper()
	require.NoError(t, fx.node.link.Do(context.Background(), func(s *link.Session) error {
		_, err := s.Poll(fx.node)
		return err
	}))
}

type tripCounter struct {
	trips   []int
	samples int
}

func (c *tripCounter) Sample(int, float64, float64) { c.samples++ }
func (c *tripCounter) Tripped(o int)                { c.trips = append(c.trips, o) }

func TestOvercurrentTrip(t *testing.T) {
	fx := newFixture(t, false)
	fx.modem.SetAckPolicy(linktest.AckAll)
	obs := &tripCounter{}
	fx.node.SetObserver(obs)

	require.NoError(t, fx.bank.SetEnabled(1, true))
	require.NoError(t, fx.bank.SetMaxPower(1, 100))
	fx.meter.regs[bl0906.RegPower1] = bl0906.DefaultConverter.PowerRaw(120)
	fx.meter.regs[bl0906.RegCurrent1] = 0x1000

	require.NoError(t, fx.node.MonitorCycle(context.Background()))

	o, err := fx.bank.Get(1)
	require.NoError(t, err)
	assert.False(t, o.Enabled)

	var persisted bool
	require.NoError(t, fx.store.Namespace(outputs.Namespace).Get("r1_state", &persisted))
	assert.False(t, persisted)

	trips := fx.modem.SentWithCode(hplc.CodeTrip)
	require.Len(t, trips, 1)
	assert.Equal(t, coordinatorAddr, trips[0].Target)
	assert.Equal(t, hplc.TripPayload(stationAddr, 1), trips[0].Frame.Data())
	assert.Equal(t, []int{1}, obs.trips)

	// Push is off so no telemetry went out
	assert.Empty(t, fx.modem.SentWithCode(hplc.CodePower))
	assert.Empty(t, fx.modem.SentWithCode(hplc.CodeCurrent))

	// Trip is sticky: the next cycle does not touch the output
	fx.modem.Reset()
	require.NoError(t, fx.node.MonitorCycle(context.Background()))
	assert.Empty(t, fx.modem.Sent())
}

func TestTripWithoutAckStillDisables(t *testing.T) {
	fx := newFixture(t, false)
	require.NoError(t, fx.bank.SetEnabled(2, true))
	require.NoError(t, fx.bank.SetMaxPower(2, 50))
	fx.meter.regs[bl0906.RegPower2] = bl0906.DefaultConverter.PowerRaw(60)

	require.NoError(t, fx.node.MonitorCycle(context.Background()))

	o, _ := fx.bank.Get(2)
	assert.False(t, o.Enabled)
	assert.Len(t, fx.modem.SentWithCode(hplc.CodeTrip), 3)
}

func TestNoTripUnderLimitOrUnlimited(t *testing.T) {
	fx := newFixture(t, false)
	require.NoError(t, fx.bank.SetEnabled(1, true))
	require.NoError(t, fx.bank.SetMaxPower(1, 200))
	require.NoError(t, fx.bank.SetEnabled(3, true))
	fx.meter.regs[bl0906.RegPower1] = bl0906.DefaultConverter.PowerRaw(120)
	fx.meter.regs[bl0906.RegPower3] = bl0906.DefaultConverter.PowerRaw(5000)

	require.NoError(t, fx.node.MonitorCycle(context.Background()))

	for _, idx := range []int{1, 3} {
		o, _ := fx.bank.Get(idx)
		assert.True(t, o.Enabled, "output %d", idx)
	}
	assert.Empty(t, fx.modem.Sent())
}

func TestNegativePowerTrips(t *testing.T) {
	fx := newFixture(t, false)
	fx.modem.SetAckPolicy(linktest.AckAll)
	require.NoError(t, fx.bank.SetEnabled(1, true))
	require.NoError(t, fx.bank.SetMaxPower(1, 100))
	raw := bl0906.DefaultConverter.PowerRaw(120)
	fx.meter.regs[bl0906.RegPower1] = (^raw + 1) & 0xFFFFFF

	require.NoError(t, fx.node.MonitorCycle(context.Background()))

	o, _ := fx.bank.Get(1)
	assert.False(t, o.Enabled)
}

func TestMeterFailureSkipsOutput(t *testing.T) {
	fx := newFixture(t, true)
	require.NoError(t, fx.bank.SetEnabled(1, true))
	require.NoError(t, fx.bank.SetMaxPower(1, 100))
	fx.meter.regs[bl0906.RegPower1] = bl0906.DefaultConverter.PowerRaw(120)
	fx.meter.fail[bl0906.RegPower1] = true

	require.NoError(t, fx.node.MonitorCycle(context.Background()))

	o, _ := fx.bank.Get(1)
	assert.True(t, o.Enabled)
	assert.Len(t, fx.modem.SentWithCode(hplc.CodeCurrent), 1)
	assert.Empty(t, fx.modem.SentWithCode(hplc.CodePower))
	assert.Empty(t, fx.modem.SentWithCode(hplc.CodeTrip))
}

func TestCurrentReadFailureSkipsOutput(t *testing.T) {
	fx := newFixture(t, true)
	fx.modem.SetAckPolicy(linktest.AckAll)
	obs := &tripCounter{}
	fx.node.SetObserver(obs)
	require.NoError(t, fx.bank.SetEnabled(1, true))
	require.NoError(t, fx.bank.SetMaxPower(1, 100))
	fx.meter.regs[bl0906.RegPower1] = bl0906.DefaultConverter.PowerRaw(120)
	fx.meter.fail[bl0906.RegCurrent1] = true

	require.NoError(t, fx.node.MonitorCycle(context.Background()))

	o, _ := fx.bank.Get(1)
	assert.True(t, o.Enabled)
	assert.Equal(t, 1, fx.meter.reads)
	assert.Zero(t, obs.samples)
	assert.Empty(t, fx.modem.Sent())
}

func TestLimitRaisedDuringMeasurement(t *testing.T) {
	fx := newFixture(t, false)
	fx.modem.SetAckPolicy(linktest.AckAll)
	require.NoError(t, fx.bank.SetEnabled(1, true))
	require.NoError(t, fx.bank.SetMaxPower(1, 100))
	fx.meter.regs[bl0906.RegPower1] = bl0906.DefaultConverter.PowerRaw(120)
	fx.meter.onRead = func(addr byte) {
		if addr != bl0906.RegCurrent1 {
			return
		}
		fx.modem.InjectFrame(hplc.CodeSetMaxPower, hplc.SetMaxPowerPayload(1, 200))
		fx.poll(t)
	}

	require.NoError(t, fx.node.MonitorCycle(context.Background()))

	o, _ := fx.bank.Get(1)
	assert.True(t, o.Enabled)
	assert.Equal(t, uint16(200), o.MaxPower)
	assert.Len(t, fx.modem.SentWithCode(hplc.CodeSetMaxPowerAck), 1)
	assert.Empty(t, fx.modem.SentWithCode(hplc.CodeTrip))
}

func TestOutputDisabledDuringMeasurement(t *testing.T) {
	fx := newFixture(t, false)
	fx.modem.SetAckPolicy(linktest.AckAll)
	require.NoError(t, fx.bank.SetEnabled(1, true))
	require.NoError(t, fx.bank.SetMaxPower(1, 100))
	fx.meter.regs[bl0906.RegPower1] = bl0906.DefaultConverter.PowerRaw(120)
	fx.meter.onRead = func(addr byte) {
		if addr != bl0906.RegPower1 {
			return
		}
		fx.modem.InjectFrame(hplc.CodeSetOutput, hplc.SetOutputPayload(1, false))
		fx.poll(t)
	}

	require.NoError(t, fx.node.MonitorCycle(context.Background()))

	o, _ := fx.bank.Get(1)
	assert.False(t, o.Enabled)
	assert.Empty(t, fx.modem.SentWithCode(hplc.CodeTrip))
}

func TestTelemetryPush(t *testing.T) {
	fx := newFixture(t, true)
	require.NoError(t, fx.bank.SetEnabled(2, true))
	fx.meter.regs[bl0906.RegCurrent2] = 0x0102AB
	fx.meter.regs[bl0906.RegPower2] = 0x00A7CD

	require.NoError(t, fx.node.MonitorCycle(context.Background()))

	cur := fx.modem.SentWithCode(hplc.CodeCurrent)
	require.Len(t, cur, 1)
	assert.Equal(t, []byte{0x00, 0x13, 0xD7, 0x63, 0x22, 0x02, 0x02, 0xAB, 0x02, 0x01}, cur[0].Frame.Data())

	pow := fx.modem.SentWithCode(hplc.CodePower)
	require.Len(t, pow, 1)
	tel, err := hplc.ParseTelemetry(pow[0].Frame)
	require.NoError(t, err)
	assert.Equal(t, stationAddr, tel.Station)
	assert.Equal(t, 2, tel.Output)
	assert.Equal(t, uint32(0x00A7CD), tel.Raw)

	// Disabled outputs are not measured
	assert.Equal(t, 2, fx.meter.reads)
}

func TestRunControlLoopStops(t *testing.T) {
	fx := newFixture(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := fx.node.RunControlLoop(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
