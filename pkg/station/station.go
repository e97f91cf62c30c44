// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package station implements a power strip node: it obeys coordinator
// commands and runs the overcurrent protection loop.
package station

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/plcstrip/pkg/bl0906"
	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
	"github.com/Thermoquad/plcstrip/pkg/outputs"
)

// DefaultInterval is the control loop period
const DefaultInterval = 2000 * time.Millisecond

// Meter reads raw 24-bit metering registers. *bl0906.Client satisfies it.
type Meter interface {
	ReadRaw(addr byte) (uint32, error)
}

// Observer receives control loop events
type Observer interface {
	Sample(output int, current, power float64)
	Tripped(output int)
}

type nopObserver struct{}

func (nopObserver) Sample(int, float64, float64) {}
func (nopObserver) Tripped(int)                  {}

// Config identifies the node and tunes the control loop
type Config struct {
	Address     hplc.Address
	Coordinator hplc.Address
	Interval    time.Duration
	Push        bool       // initial telemetry push switch
	PushRate    rate.Limit // telemetry frames per second; 0 is unlimited
}

// Node is a station
type Node struct {
	cfg      Config
	link     *link.Link
	bank     *outputs.Bank
	meter    Meter
	conv     *bl0906.Converter
	log      *zap.Logger
	observer Observer
	push     atomic.Bool
	limiter  *rate.Limiter
}

// New creates a station node. conv may be nil for bl0906.DefaultConverter.
func New(cfg Config, l *link.Link, bank *outputs.Bank, meter Meter, conv *bl0906.Converter, log *zap.Logger) *Node {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if conv == nil {
		conv = bl0906.DefaultConverter
	}
	if log == nil {
		log = zap.NewNop()
	}
	limit := cfg.PushRate
	if limit <= 0 {
		limit = rate.Inf
	}
	n := &Node{
		cfg:      cfg,
		link:     l,
		bank:     bank,
		meter:    meter,
		conv:     conv,
		log:      log.With(zap.Stringer("station", cfg.Address)),
		observer: nopObserver{},
		limiter:  rate.NewLimiter(limit, 2*hplc.OutputCount),
	}
	n.push.Store(cfg.Push)
	return n
}

// SetObserver installs an event observer
func (n *Node) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	n.observer = o
}

// PushEnabled reports whether telemetry is being pushed
func (n *Node) PushEnabled() bool {
	return n.push.Load()
}

// Run serves coordinator commands and runs the control loop until ctx is
// done or either fails
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.link.Serve(ctx, n)
	})
	g.Go(func() error {
		return n.RunControlLoop(ctx)
	})
	return g.Wait()
}
