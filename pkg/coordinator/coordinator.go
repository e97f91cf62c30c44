// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package coordinator implements the coordinator node: it tracks the
// power strips on the network, relays touch screen commands to them and
// shows their telemetry.
package coordinator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/plcstrip/pkg/bl0906"
	"github.com/Thermoquad/plcstrip/pkg/display"
	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
	"github.com/Thermoquad/plcstrip/pkg/registry"
)

// DefaultInterval is the period of the discovery and heartbeat task
const DefaultInterval = 10 * time.Second

// Observer receives coordinator events
type Observer interface {
	StripsOnline(n int)
	TripReported(output int)
}

type nopObserver struct{}

func (nopObserver) StripsOnline(int) {}
func (nopObserver) TripReported(int) {}

// Config identifies the node
type Config struct {
	Address  hplc.Address
	Peer     hplc.Address // heartbeat replies go here
	Interval time.Duration
}

// Node is a coordinator
type Node struct {
	cfg      Config
	link     *link.Link
	screen   *display.Screen
	disp     display.Display
	reg      *registry.Registry
	conv     *bl0906.Converter
	log      *zap.Logger
	observer Observer

	mu      sync.Mutex
	current hplc.Address // strip shown on the control page
	viewing bool
}

// New creates a coordinator. screen may be nil when no touch screen is
// attached; disp then receives the instructions instead.
func New(cfg Config, l *link.Link, screen *display.Screen, disp display.Display, reg *registry.Registry, conv *bl0906.Converter, log *zap.Logger) *Node {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if screen != nil {
		disp = screen.Display()
	}
	if disp == nil {
		disp = display.NewRecorder()
	}
	if conv == nil {
		conv = bl0906.DefaultConverter
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Node{
		cfg:      cfg,
		link:     l,
		screen:   screen,
		disp:     disp,
		reg:      reg,
		conv:     conv,
		log:      log,
		observer: nopObserver{},
	}
}

// SetObserver installs an event observer
func (n *Node) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	n.observer = o
}

// Current returns the strip shown on the control page, if any
func (n *Node) Current() (hplc.Address, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current, n.viewing
}

func (n *Node) setCurrent(addr hplc.Address, viewing bool) {
	n.mu.Lock()
	n.current = addr
	n.viewing = viewing
	n.mu.Unlock()
}

func (n *Node) isCurrent(addr hplc.Address) bool {
	cur, ok := n.Current()
	return ok && cur == addr
}

// Run serves both serial channels and runs the monitor task until ctx is
// done or one of them fails
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.link.Serve(ctx, n)
	})
	if n.screen != nil {
		if err := n.withScreen(ctx, func(d display.Display) error {
			return d.GotoPage(PageHome)
		}); err != nil {
			n.log.Warn("screen init failed", zap.Error(err))
		}
		g.Go(func() error {
			return n.screen.Serve(ctx, func(d display.Display, f *hplc.Frame) {
				n.HandleScreenFrame(ctx, d, f)
			})
		})
	}
	g.Go(func() error {
		return n.RunMonitor(ctx)
	})
	return g.Wait()
}

// withScreen runs fn holding the screen when one is attached
func (n *Node) withScreen(ctx context.Context, fn func(d display.Display) error) error {
	if n.screen == nil {
		return fn(n.disp)
	}
	return n.screen.Do(ctx, fn)
}
