package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/logging"
	"github.com/dmitrijs2005/studyctl/internal/obs"
	"github.com/dmitrijs2005/studyctl/internal/retry"
)

// ErrPermanentlyDisconnected is reported once every reconnect attempt has
// failed. The bridge does not retry on its own after that; Start it again.
var ErrPermanentlyDisconnected = errors.New("push stream permanently disconnected")

var (
	errStreamEnded = errors.New("push stream ended")
	errStalled     = errors.New("push stream stalled")
)

// Streamer opens the event stream. *client.HTTPClient implements it.
type Streamer interface {
	OpenStream(ctx context.Context, path string) (io.ReadCloser, error)
}

// Handler receives dispatched events. ctx ends when the bridge stops.
type Handler func(ctx context.Context, ev Event)

type Config struct {
	Path string
	// BaseDelay is the wait before the first reconnect; each further
	// attempt doubles it.
	BaseDelay time.Duration
	// MaxReconnects bounds the consecutive failed reconnects.
	MaxReconnects int
	// IdleTimeout drops a connection that has sent nothing, not even a
	// ping, for this long. Zero disables the check.
	IdleTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Path:          "/notes/ws",
		BaseDelay:     time.Second,
		MaxReconnects: 5,
		IdleTimeout:   90 * time.Second,
	}
}

type subscriber struct {
	id int
	fn Handler
}

// Bridge owns one push connection. The zero value is not usable; build it
// with New. Start and Stop may be called repeatedly.
type Bridge struct {
	streamer Streamer
	cfg      Config
	log      logging.Logger
	metrics  obs.Recorder

	mu        sync.Mutex
	subs      []subscriber
	nextID    int
	onConnect []func(ctx context.Context)
	connected bool
	err       error

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	hooks  sync.WaitGroup
}

func New(s Streamer, cfg Config, log logging.Logger, metrics obs.Recorder) *Bridge {
	def := DefaultConfig()
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxReconnects < 0 {
		cfg.MaxReconnects = 0
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Bridge{
		streamer: s,
		cfg:      cfg,
		log:      log.With("component", "push"),
		metrics:  obs.OrNop(metrics),
	}
}

// Subscribe registers fn. Events are dispatched in registration order; a
// panicking handler is logged and does not affect the others. The
// returned function unsubscribes and is safe to call more than once.
func (b *Bridge) Subscribe(fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// OnConnected registers fn to run after every acknowledged connection,
// outside the read loop.
func (b *Bridge) OnConnected(fn func(ctx context.Context)) {
	b.mu.Lock()
	b.onConnect = append(b.onConnect, fn)
	b.mu.Unlock()
}

// Connected reports whether the current connection has been acknowledged.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Err returns ErrPermanentlyDisconnected (wrapping the last connection
// error) after the bridge gave up, nil otherwise.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Start connects in the background. Calling Start on a running bridge does
// nothing.
func (b *Bridge) Start(ctx context.Context) {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if b.done != nil {
		select {
		case <-b.done:
		default:
			return
		}
	}

	b.mu.Lock()
	b.err = nil
	b.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.cancel, b.done = cancel, done

	go func() {
		defer close(done)
		b.run(ctx)
	}()
}

// Stop closes the connection, cancels any pending reconnect and waits for
// the background work to finish.
func (b *Bridge) Stop() {
	b.runMu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel = nil
	b.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	b.hooks.Wait()
}

// Done is closed when the background loop exits, either through Stop or
// after giving up. It is nil before the first Start.
func (b *Bridge) Done() <-chan struct{} {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	return b.done
}

func (b *Bridge) policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: b.cfg.MaxReconnects + 1,
		Delay:       retry.Exponential(b.cfg.BaseDelay),
		OnRetry: func(n int, d time.Duration, err error) {
			b.metrics.PushReconnect()
			b.log.Warn(context.Background(), "push connection lost, reconnecting",
				"attempt", n, "max", b.cfg.MaxReconnects, "delay", d, "err", err)
		},
	}
}

func (b *Bridge) run(ctx context.Context) {
	backoff := b.policy().Backoff()
	err := retry.DoWith(ctx, backoff, func(ctx context.Context) error {
		return b.connect(ctx, backoff)
	})
	b.setConnected(false)

	if ctx.Err() != nil {
		return
	}
	b.mu.Lock()
	b.err = fmt.Errorf("%w: %w", ErrPermanentlyDisconnected, err)
	b.mu.Unlock()
	b.log.Error(ctx, "push stream gave up", "err", err)
}

// connect runs one connection until it drops. The stream is closed before
// connect returns, so a reconnect never overlaps the previous connection.
func (b *Bridge) connect(ctx context.Context, backoff *retry.Backoff) (err error) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	body, err := b.streamer.OpenStream(connCtx, b.cfg.Path)
	if err != nil {
		return err
	}
	defer body.Close()
	defer b.setConnected(false)

	var stalled bool
	var idle *time.Timer
	if b.cfg.IdleTimeout > 0 {
		var mu sync.Mutex
		idle = time.AfterFunc(b.cfg.IdleTimeout, func() {
			mu.Lock()
			stalled = true
			mu.Unlock()
			cancel()
		})
		defer idle.Stop()
		defer func() {
			mu.Lock()
			defer mu.Unlock()
			if stalled && ctx.Err() == nil {
				err = errStalled
			}
		}()
	}

	frames := newFrameReader(body)
	acked := false
	for {
		data, rerr := frames.Next()
		if rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(rerr, io.EOF) {
				return errStreamEnded
			}
			return rerr
		}
		if idle != nil {
			idle.Reset(b.cfg.IdleTimeout)
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			b.log.Warn(ctx, "malformed push frame", "err", err)
			continue
		}

		switch {
		case ev.Type == TypeConnection:
			if !acked {
				acked = true
				backoff.Reset()
				b.setConnected(true)
				b.log.Info(ctx, "push connection established")
				b.runHooks(ctx)
			}
		case ev.Type == TypePing:
		case !acked:
			b.log.Debug(ctx, "push event before acknowledgement dropped", "type", ev.Type)
		default:
			b.metrics.PushEvent(ev.Type)
			b.dispatch(ctx, ev)
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, ev Event) {
	b.mu.Lock()
	subs := append([]subscriber(nil), b.subs...)
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(ctx, s, ev)
	}
}

func (b *Bridge) deliver(ctx context.Context, s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error(ctx, "push subscriber panicked", "subscriber", s.id, "type", ev.Type, "panic", r)
		}
	}()
	s.fn(ctx, ev)
}

func (b *Bridge) runHooks(ctx context.Context) {
	b.mu.Lock()
	hooks := slices.Clone(b.onConnect)
	b.mu.Unlock()

	for _, fn := range hooks {
		b.hooks.Add(1)
		go func() {
			defer b.hooks.Done()
			defer func() {
				if r := recover(); r != nil {
					b.log.Error(ctx, "push connect hook panicked", "panic", r)
				}
			}()
			fn(ctx)
		}()
	}
}

func (b *Bridge) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}
