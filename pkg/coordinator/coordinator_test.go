// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/plcstrip/pkg/bl0906"
	"github.com/Thermoquad/plcstrip/pkg/display"
	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
	"github.com/Thermoquad/plcstrip/pkg/link/linktest"
	"github.com/Thermoquad/plcstrip/pkg/registry"
	"github.com/Thermoquad/plcstrip/pkg/store"
)

var (
	coordinatorAddr = hplc.Address{0x00, 0x13, 0xD7, 0x63, 0x22, 0x01}
	stripA          = hplc.Address{0x00, 0x13, 0xD7, 0x63, 0x22, 0x02}
	stripB          = hplc.Address{0x00, 0x13, 0xD7, 0x63, 0x22, 0x03}
)

type fixture struct {
	node  *Node
	modem *linktest.Modem
	reg   *registry.Registry
	rec   *display.Recorder
	obs   *eventCounter
}

type eventCounter struct {
	online []int
	trips  []int
}

func (c *eventCounter) StripsOnline(n int)   { c.online = append(c.online, n) }
func (c *eventCounter) TripReported(idx int) { c.trips = append(c.trips, idx) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := registry.Open(store.NewMemory().Namespace(registry.Namespace), nil)
	require.NoError(t, err)

	modem := linktest.NewModem()
	l := link.New(modem, link.Options{
		AckTimeout:   20 * time.Millisecond,
		PollInterval: time.Millisecond,
		LineTimeout:  20 * time.Millisecond,
		LockWait:     time.Millisecond,
	}, nil)
	rec := display.NewRecorder()
	node := New(Config{Address: coordinatorAddr, Peer: coordinatorAddr}, l, nil, rec, reg, nil, nil)
	obs := &eventCounter{}
	node.SetObserver(obs)
	return &fixture{node: node, modem: modem, reg: reg, rec: rec, obs: obs}
}

// poll lets the node handle every frame injected into the modem
func (fx *fixture) poll(t *testing.T) {
	t.Helper()
	require.NoError(t, fx.node.link.Do(context.Background(), func(s *link.Session) error {
		_, err := s.Poll(fx.node)
		return err
	}))
}

func screenFrame(code byte, data ...byte) *hplc.Frame {
	f, err := hplc.NewFrame(code, data)
	if err != nil {
		panic(err)
	}
	return f
}

func TestHeartbeatReply(t *testing.T) {
	fx := newFixture(t)
	fx.modem.InjectFrame(hplc.CodeHeartbeat, nil)
	fx.poll(t)

	acks := fx.modem.SentWithCode(hplc.CodeHeartbeatAck)
	require.Len(t, acks, 1)
	assert.Equal(t, coordinatorAddr, acks[0].Target)
}

func TestTripNotification(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.reg.Add(registry.Strip{Address: stripA, Name: "Desk"}))
	require.NoError(t, fx.reg.SetOutput(stripA, 2, true))
	fx.node.setCurrent(stripA, true)

	fx.modem.InjectFrame(hplc.CodeTrip, hplc.TripPayload(stripA, 2))
	fx.poll(t)

	s, err := fx.reg.Get(stripA)
	require.NoError(t, err)
	assert.False(t, s.Outputs[1].Enabled)
	assert.Equal(t, []int{2}, fx.obs.trips)
	assert.Equal(t, []string{
		`Control.bt2.val=0`,
		`Control.dl2.txt="-"`,
	}, fx.rec.Commands())

	acks := fx.modem.SentWithCode(hplc.CodeTripAck)
	require.Len(t, acks, 1)
	assert.Equal(t, stripA, acks[0].Target)
}

func TestTripFromUnknownStripIsAcknowledged(t *testing.T) {
	fx := newFixture(t)
	fx.modem.InjectFrame(hplc.CodeTrip, hplc.TripPayload(stripB, 1))
	fx.poll(t)

	acks := fx.modem.SentWithCode(hplc.CodeTripAck)
	require.Len(t, acks, 1)
	assert.Equal(t, stripB, acks[0].Target)
	assert.Empty(t, fx.rec.Commands())
	assert.Equal(t, 0, fx.reg.Len())
}

func TestTelemetryShownForCurrentStrip(t *testing.T) {
	fx := newFixture(t)
	raw := bl0906.DefaultConverter.PowerRaw(120)

	// Not on the control page: ignored
	fx.modem.InjectFrame(hplc.CodePower, hplc.TelemetryPayload(stripA, 1, bl0906.Bytes24(raw)))
	fx.poll(t)
	assert.Empty(t, fx.rec.Commands())

	fx.node.setCurrent(stripA, true)
	fx.modem.InjectFrame(hplc.CodePower, hplc.TelemetryPayload(stripA, 1, bl0906.Bytes24(raw)))
	fx.modem.InjectFrame(hplc.CodePower, hplc.TelemetryPayload(stripB, 1, bl0906.Bytes24(raw)))
	fx.poll(t)

	cmds := fx.rec.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, `Control.gl1.txt="`+formatReading(bl0906.DefaultConverter.Power(raw))+`"`, cmds[0])
}

func TestOpenControl(t *testing.T) {
	fx := newFixture(t)
	fx.modem.SetAckPolicy(linktest.AckAll)
	require.NoError(t, fx.reg.Add(registry.Strip{Address: stripA, Name: "Desk"}))
	require.NoError(t, fx.reg.SetMaxPower(stripA, 3, 1500))

	fx.node.HandleScreenFrame(context.Background(), fx.rec, screenFrame(hplc.ScreenOpenControl, stripA[:]...))

	cur, ok := fx.node.Current()
	assert.True(t, ok)
	assert.Equal(t, stripA, cur)

	cmds := fx.rec.Commands()
	assert.Contains(t, cmds, `Control.mac.txt="0013D7632202"`)
	assert.Contains(t, cmds, `Control.sname.txt="Desk"`)
	assert.Contains(t, cmds, `Control.xz3.val=1500`)

	push := fx.modem.SentWithCode(hplc.CodePushSwitch)
	require.Len(t, push, 1)
	assert.Equal(t, hplc.PushSwitchPayload(true), push[0].Frame.Data())

	fx.node.HandleScreenFrame(context.Background(), fx.rec, screenFrame(hplc.ScreenLeave))
	_, ok = fx.node.Current()
	assert.False(t, ok)
	push = fx.modem.SentWithCode(hplc.CodePushSwitch)
	require.Len(t, push, 2)
	assert.Equal(t, hplc.PushSwitchPayload(false), push[1].Frame.Data())
}

func TestOpenControlUnreachable(t *testing.T) {
	fx := newFixture(t)
	fx.node.HandleScreenFrame(context.Background(), fx.rec, screenFrame(hplc.ScreenOpenControl, stripA[:]...))

	_, ok := fx.node.Current()
	assert.False(t, ok)
	assert.Equal(t, []string{"click back,0"}, fx.rec.Commands())
	assert.Len(t, fx.modem.SentWithCode(hplc.CodePushSwitch), link.DefaultMaxRetries)
}

func TestSetOutputFromScreen(t *testing.T) {
	fx := newFixture(t)
	fx.modem.SetAckPolicy(linktest.AckAll)
	require.NoError(t, fx.reg.Add(registry.Strip{Address: stripA}))

	data := append(append([]byte{}, stripA[:]...), 1, 0x01)
	fx.node.HandleScreenFrame(context.Background(), fx.rec, screenFrame(hplc.ScreenSetOutput, data...))

	s, _ := fx.reg.Get(stripA)
	assert.True(t, s.Outputs[0].Enabled)
	sent := fx.modem.SentWithCode(hplc.CodeSetOutput)
	require.Len(t, sent, 1)
	assert.Equal(t, hplc.SetOutputPayload(1, true), sent[0].Frame.Data())
	assert.Equal(t, []string{`Control.dl1.txt="-"`, `Control.gl1.txt="-"`}, fx.rec.Commands())
}

func TestTripAfterAcknowledgedSetOutputWins(t *testing.T) {
	fx := newFixture(t)
	fx.modem.SetAckPolicy(linktest.AckAll)
	require.NoError(t, fx.reg.Add(registry.Strip{Address: stripA}))

	// The strip trips right after switching output 1 on
	trip, err := hplc.Encode(hplc.CodeTrip, hplc.TripPayload(stripA, 1))
	require.NoError(t, err)
	fx.modem.SetFollow(func(s linktest.Sent) []byte {
		if s.Frame.ControlCode() == hplc.CodeSetOutput {
			return trip
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- fx.node.link.Serve(ctx, fx.node)
	}()

	data := append(append([]byte{}, stripA[:]...), 1, 0x01)
	fx.node.HandleScreenFrame(ctx, fx.rec, screenFrame(hplc.ScreenSetOutput, data...))

	require.Eventually(t, func() bool {
		return len(fx.modem.SentWithCode(hplc.CodeTripAck)) == 1
	}, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	s, err := fx.reg.Get(stripA)
	require.NoError(t, err)
	assert.False(t, s.Outputs[0].Enabled)
}

func TestSetOutputRestoresScreenOnFailure(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.reg.Add(registry.Strip{Address: stripA}))
	require.NoError(t, fx.reg.SetOutput(stripA, 3, true))

	data := append(append([]byte{}, stripA[:]...), 3, 0x00)
	fx.node.HandleScreenFrame(context.Background(), fx.rec, screenFrame(hplc.ScreenSetOutput, data...))

	s, _ := fx.reg.Get(stripA)
	assert.True(t, s.Outputs[2].Enabled)
	assert.Equal(t, []string{`Control.bt3.val=1`}, fx.rec.Commands())
}

func TestSetOutputInvalidIndex(t *testing.T) {
	fx := newFixture(t)
	fx.modem.SetAckPolicy(linktest.AckAll)
	require.NoError(t, fx.reg.Add(registry.Strip{Address: stripA}))

	data := append(append([]byte{}, stripA[:]...), 4, 0x01)
	fx.node.HandleScreenFrame(context.Background(), fx.rec, screenFrame(hplc.ScreenSetOutput, data...))
	assert.Empty(t, fx.modem.Sent())
}

func TestSetMaxPowerFromScreen(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.reg.Add(registry.Strip{Address: stripA}))
	require.NoError(t, fx.reg.SetMaxPower(stripA, 2, 800))

	data := append(append([]byte{}, stripA[:]...), 2, 0xB0, 0x04)

	// No acknowledgment: the previous limit is put back
	fx.node.HandleScreenFrame(context.Background(), fx.rec, screenFrame(hplc.ScreenSetMaxPower, data...))
	assert.Equal(t, []string{`Control.xz2.val=800`}, fx.rec.Commands())
	s, _ := fx.reg.Get(stripA)
	assert.Equal(t, uint16(800), s.Outputs[1].MaxPower)

	fx.modem.SetAckPolicy(linktest.AckAll)
	fx.modem.Reset()
	fx.rec.Reset()
	fx.node.HandleScreenFrame(context.Background(), fx.rec, screenFrame(hplc.ScreenSetMaxPower, data...))
	assert.Empty(t, fx.rec.Commands())
	s, _ = fx.reg.Get(stripA)
	assert.Equal(t, uint16(1200), s.Outputs[1].MaxPower)

	sent := fx.modem.SentWithCode(hplc.CodeSetMaxPower)
	require.Len(t, sent, 1)
	assert.Equal(t, hplc.SetMaxPowerPayload(2, 1200), sent[0].Frame.Data())
}

func TestRenameFromScreen(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.reg.Add(registry.Strip{Address: stripA, Name: "Strip_1"}))

	data := append(append([]byte{}, stripA[:]...), "Kitchen"...)
	fx.node.HandleScreenFrame(context.Background(), fx.rec, screenFrame(hplc.ScreenRename, data...))

	s, _ := fx.reg.Get(stripA)
	assert.Equal(t, "Kitchen", s.Name)
	assert.Empty(t, fx.modem.Sent())
}

func TestShortScreenFrameIgnored(t *testing.T) {
	fx := newFixture(t)
	fx.modem.SetAckPolicy(linktest.AckAll)
	fx.node.HandleScreenFrame(context.Background(), fx.rec, screenFrame(hplc.ScreenOpenControl, 0x00, 0x13))
	assert.Empty(t, fx.modem.Sent())
	assert.Empty(t, fx.rec.Commands())
}

func TestMonitorCycle(t *testing.T) {
	fx := newFixture(t)
	fx.modem.SetTopology("2", "0013D7632202,1", "0013D7632203,2")
	fx.modem.SetAckPolicy(func(s linktest.Sent, _ int) bool {
		return s.Target == stripA
	})

	require.NoError(t, fx.node.MonitorCycle(context.Background()))

	strips := fx.reg.List()
	require.Len(t, strips, 2)
	assert.Equal(t, "Strip_1", strips[0].Name)
	assert.True(t, strips[0].Online)
	assert.Equal(t, "Strip_2", strips[1].Name)
	assert.False(t, strips[1].Online)
	assert.Equal(t, []int{1}, fx.obs.online)

	cmds := fx.rec.Commands()
	assert.Contains(t, cmds, `Home.p1.y=95`)
	assert.Contains(t, cmds, `Home.sname1.txt="Strip_1"`)
	assert.Contains(t, cmds, `Home.pmac1.txt="0013D7632202"`)
	assert.Contains(t, cmds, `Home.p2.y=295`)
	assert.Contains(t, cmds, `Home.sname3.txt="Strip"`)

	// A second cycle keeps existing names and retries the offline strip
	require.NoError(t, fx.reg.Rename(stripA, "Desk"))
	fx.modem.Reset()
	require.NoError(t, fx.node.MonitorCycle(context.Background()))
	s, _ := fx.reg.Get(stripA)
	assert.Equal(t, "Desk", s.Name)
	assert.Len(t, fx.modem.SentWithCode(hplc.CodeHeartbeat), 1+link.DefaultMaxRetries)
}

func TestMonitorCycleWithoutTopology(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.node.MonitorCycle(context.Background()))
	assert.Equal(t, 0, fx.reg.Len())
	assert.Equal(t, []int{0}, fx.obs.online)
}

func TestRunMonitorStops(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.node.RunMonitor(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}
