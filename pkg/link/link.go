// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link drives a PLC modem serial channel: locked access, frame
// transmission with acknowledgment and retry, inbound frame dispatch and
// topology discovery.
package link

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/plcstrip/pkg/hplc"
)

// Defaults
const (
	DefaultMaxRetries   = 3
	DefaultAckTimeout   = 1000 * time.Millisecond
	DefaultPollInterval = 10 * time.Millisecond
	DefaultLineTimeout  = 500 * time.Millisecond
	DefaultLockWait     = 10 * time.Millisecond
	DefaultBacklogSize  = 32
)

// Port is a serial channel to the modem. go.bug.st/serial ports satisfy it.
// Read must return (0, nil) once the read timeout elapses without data.
type Port interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
}

// Options tunes a Link. Zero fields take the package defaults.
type Options struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	AckTimeout   time.Duration `mapstructure:"ack_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	LineTimeout  time.Duration `mapstructure:"line_timeout"`
	LockWait     time.Duration `mapstructure:"lock_wait"`
	BacklogSize  int           `mapstructure:"backlog_size"`
}

// DefaultOptions returns the protocol defaults
func DefaultOptions() Options {
	return Options{
		MaxRetries:   DefaultMaxRetries,
		AckTimeout:   DefaultAckTimeout,
		PollInterval: DefaultPollInterval,
		LineTimeout:  DefaultLineTimeout,
		LockWait:     DefaultLockWait,
		BacklogSize:  DefaultBacklogSize,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = d.AckTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.LineTimeout <= 0 {
		o.LineTimeout = d.LineTimeout
	}
	if o.LockWait <= 0 {
		o.LockWait = d.LockWait
	}
	if o.BacklogSize <= 0 {
		o.BacklogSize = d.BacklogSize
	}
	return o
}

// FrameHandler consumes inbound frames. It runs with the link held and
// may send through the session it is given.
type FrameHandler interface {
	HandleFrame(s *Session, f *hplc.Frame)
}

// HandlerFunc adapts a function to FrameHandler
type HandlerFunc func(s *Session, f *hplc.Frame)

// HandleFrame calls fn(s, f)
func (fn HandlerFunc) HandleFrame(s *Session, f *hplc.Frame) {
	fn(s, f)
}

// Observer receives link events. pkg/metrics provides a Prometheus
// implementation.
type Observer interface {
	FrameReceived(code byte)
	FrameSent(code byte, reliable bool)
	AckResult(code byte, attempts int, ok bool)
	BacklogDropped()
	DiscoveryResult(nodes int, err error)
}

type nopObserver struct{}

func (nopObserver) FrameReceived(byte)         {}
func (nopObserver) FrameSent(byte, bool)       {}
func (nopObserver) AckResult(byte, int, bool)  {}
func (nopObserver) BacklogDropped()            {}
func (nopObserver) DiscoveryResult(int, error) {}

// Link owns one modem channel: the port, its frame decoder, the frames
// waiting for dispatch and the lock serializing access.
type Link struct {
	port     Port
	opts     Options
	log      *zap.Logger
	observer Observer

	lock    *Lock
	decoder *hplc.Decoder
	backlog []*hplc.Frame
	text    []byte
	readBuf []byte
	timeout time.Duration
	stats   *Statistics
}

// New creates a Link on port
func New(port Port, opts Options, log *zap.Logger) *Link {
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Link{
		port:     port,
		opts:     opts,
		log:      log,
		observer: nopObserver{},
		lock:     NewLock(),
		decoder:  hplc.NewDecoder(),
		readBuf:  make([]byte, 256),
		stats:    NewStatistics(),
	}
}

// SetObserver installs an event observer. Call before the link is used.
func (l *Link) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	l.observer = o
}

// Options returns the effective options
func (l *Link) Options() Options {
	return l.opts
}

// Do runs fn with exclusive access to the link, waiting as long as it
// takes to acquire it or until ctx is done.
func (l *Link) Do(ctx context.Context, fn func(s *Session) error) error {
	if err := l.lock.Acquire(ctx); err != nil {
		return err
	}
	defer l.lock.Release()
	return fn(&Session{l: l})
}

// TryDo runs fn only if the link can be acquired within wait. It returns
// ErrLockTimeout without running fn otherwise.
func (l *Link) TryDo(wait time.Duration, fn func(s *Session) error) error {
	if !l.lock.TryAcquire(wait) {
		return ErrLockTimeout
	}
	defer l.lock.Release()
	return fn(&Session{l: l})
}

// Serve polls the link for inbound frames until ctx is done. Each pass
// takes the lock with a bounded wait so background senders get a turn.
func (l *Link) Serve(ctx context.Context, h FrameHandler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := l.TryDo(l.opts.LockWait, func(s *Session) error {
			_, err := s.Poll(h)
			return err
		})
		switch {
		case err == ErrLockTimeout:
			time.Sleep(l.opts.PollInterval)
		case err != nil:
			return err
		}
	}
}

// Stats returns the link statistics. Callers must not modify it while the
// link is running.
func (l *Link) Stats() *Statistics {
	return l.stats
}
