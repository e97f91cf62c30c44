// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/plcstrip/pkg/config"
	"github.com/Thermoquad/plcstrip/pkg/link"
	"github.com/Thermoquad/plcstrip/pkg/metrics"
	"github.com/Thermoquad/plcstrip/pkg/store"
)

// nodeRuntime holds what the station and coordinator commands share
type nodeRuntime struct {
	cfg     *config.Config
	log     *zap.Logger
	conn    Connection
	link    *link.Link
	store   *store.File
	metrics *metrics.Metrics
}

// openNode loads the configuration, opens the modem and the store and,
// when enabled, creates the metrics
func openNode(role string) (*nodeRuntime, error) {
	settings.Set("node.role", role)
	cfg, log, err := setup()
	if err != nil {
		return nil, err
	}
	if cfg.Address().IsZero() {
		return nil, fmt.Errorf("node.address is required for a %s", role)
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return nil, err
	}
	st, err := store.OpenFile(cfg.Store.Path)
	if err != nil {
		conn.Close()
		return nil, err
	}

	rt := &nodeRuntime{
		cfg:   cfg,
		log:   log.With(zap.String("role", role), zap.Stringer("node", cfg.Address())),
		conn:  conn,
		store: st,
	}
	rt.link = link.New(conn, cfg.PLC.Options, rt.log.Named("link"))
	if cfg.Metrics.Enable {
		rt.metrics = metrics.New(metrics.NewRegistry())
		rt.metrics.WatchLink(rt.link)
		rt.link.SetObserver(rt.metrics)
	}
	rt.log.Info("node starting",
		zap.String("modem", connInfo),
		zap.String("store", st.Path()))
	return rt, nil
}

// run runs fn and the metrics server until SIGINT or SIGTERM
func (rt *nodeRuntime) run(fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return fn(ctx)
	})
	if rt.metrics != nil {
		g.Go(func() error {
			h := metrics.Router(rt.metrics.Registry(), rt.cfg.Metrics.Path)
			return metrics.Serve(ctx, rt.cfg.Metrics.Addr, h, rt.log.Named("metrics"))
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	rt.log.Info("node stopped", zap.Error(err))
	return err
}

func (rt *nodeRuntime) close() {
	rt.store.Close()
	rt.conn.Close()
	_ = rt.log.Sync()
}
