// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package display

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
)

func TestCommands(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{PageCommand("Home"), "page Home"},
		{ClickCommand("back", "0"), "click back,0"},
		{SetCommand("Control", "bt1", "val", "1"), "Control.bt1.val=1"},
		{SetCommand("Home", "p2", "y", "95"), "Home.p2.y=95"},
		{SetCommand("Home", "p2", "aph", "127"), "Home.p2.aph=127"},
		{SetCommand("Home", "sname1", "txt", "Desk"), `Home.sname1.txt="Desk"`},
		{SetCommand("Home", "sname1", "txt", `a"b`), `Home.sname1.txt="a\"b"`},
		{AdjustCommand("Control", "xz1", "val", 5), "Control.xz1.val+=5"},
		{AdjustCommand("Control", "xz1", "val", -5), "Control.xz1.val-=5"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got)
	}
}

func TestTJCWritesTerminator(t *testing.T) {
	var buf bytes.Buffer
	d := NewTJC(&buf)

	require.NoError(t, d.GotoPage("Home"))
	require.NoError(t, d.SetProperty("Control", "dl1", "txt", "-"))

	assert.Equal(t, "page Home\xff\xff\xffControl.dl1.txt=\"-\"\xff\xff\xff", buf.String())
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.Click("back", "0"))
	require.NoError(t, r.AdjustProperty("Home", "n0", "val", 1))
	assert.Equal(t, []string{"click back,0", "Home.n0.val+=1"}, r.Commands())
	r.Reset()
	assert.Empty(t, r.Commands())
}

// screenPort feeds queued bytes and otherwise behaves like an idle port
type screenPort struct {
	mu sync.Mutex
	rx []byte
}

func (p *screenPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rx) == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (p *screenPort) Write(b []byte) (int, error)        { return len(b), nil }
func (p *screenPort) SetReadTimeout(time.Duration) error { return nil }

func TestScreenServe(t *testing.T) {
	raw, err := hplc.EncodePlain(hplc.ScreenLeave, nil)
	require.NoError(t, err)
	port := &screenPort{rx: raw}
	s := NewScreen(port, NewRecorder(), time.Millisecond, time.Millisecond, nil)

	got := make(chan byte, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = s.Serve(ctx, func(d Display, f *hplc.Frame) {
			got <- f.ControlCode()
		})
	}()

	select {
	case code := <-got:
		assert.Equal(t, byte(hplc.ScreenLeave), code)
	case <-time.After(time.Second):
		t.Fatal("frame not dispatched")
	}
}

func TestScreenDo(t *testing.T) {
	rec := NewRecorder()
	s := NewScreen(&screenPort{}, rec, 0, 0, nil)

	require.NoError(t, s.Do(context.Background(), func(d Display) error {
		return d.GotoPage("Home")
	}))
	assert.Equal(t, []string{"page Home"}, rec.Commands())
	assert.Equal(t, rec, s.Display())
}
