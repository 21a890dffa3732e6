package collector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okxtrader/swapagent/internal/okx"
)

// sessionState names one WebSocket session's lifecycle stage, per spec C5's
// state machine: Connecting -> Subscribed -> Streaming -> (Closing|Error)
// -> Reconnecting -> Connecting, terminal only on supervisor stop.
type sessionState int

const (
	stateConnecting sessionState = iota
	stateSubscribed
	stateStreaming
	stateClosing
	stateError
	stateReconnecting
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateSubscribed:
		return "subscribed"
	case stateStreaming:
		return "streaming"
	case stateClosing:
		return "closing"
	case stateError:
		return "error"
	case stateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

var errNeedRestart = errors.New("collector: watchdog requested restart")

// runOnce dials both sessions, starts the worker pool and watchdog, and
// blocks until either ctx is cancelled (clean stop) or the watchdog marks
// needRestart (stale data), in which case it returns errNeedRestart.
func (c *Collector) runOnce(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var needRestart atomic.Bool
	msgCh := make(chan decodedMessage, 256)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.runWorkerPool(runCtx, msgCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.sessionLoop(runCtx, "public", c.cfg.PublicWSURL, c.publicArgs(), msgCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.sessionLoop(runCtx, "business", c.cfg.BusinessWSURL, c.businessArgs(), msgCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.watchdog(runCtx, func() {
			needRestart.Store(true)
			cancel()
		})
	}()

	if c.sink != nil || c.fastCache != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.publishBookLoop(runCtx)
		}()
	}

	wg.Wait()
	close(msgCh)

	if needRestart.Load() {
		return errNeedRestart
	}
	return nil
}

func (c *Collector) publicArgs() []okx.WSArg {
	args := make([]okx.WSArg, 0, len(c.symbols))
	for sym := range c.symbols {
		args = append(args, okx.WSArg{Channel: "books", InstID: sym})
	}
	return args
}

func (c *Collector) businessArgs() []okx.WSArg {
	args := make([]okx.WSArg, 0, len(c.symbols)*(len(c.cfg.Timeframes)+1))
	for sym := range c.symbols {
		args = append(args, okx.WSArg{Channel: "trades-all", InstID: sym})
		for _, tf := range c.cfg.Timeframes {
			args = append(args, okx.WSArg{Channel: "candle" + tf, InstID: sym})
		}
	}
	return args
}

// sessionLoop owns one logical session (public or business): dial,
// subscribe, stream, and on any error sleep 5s and reconnect, until ctx is
// cancelled by the supervisor.
func (c *Collector) sessionLoop(ctx context.Context, name, url string, args []okx.WSArg, out chan<- decodedMessage) {
	state := stateConnecting
	log := c.log.With().Str("session", name).Logger()

	for {
		if ctx.Err() != nil {
			return
		}

		log.Info().Str("state", state.String()).Msg("collector: dialing")
		sess, err := okx.Dial(ctx, url, args, log)
		if err != nil {
			state = stateError
			log.Warn().Err(err).Str("state", state.String()).Msg("collector: dial failed")
			if !sleepOrDone(ctx, 5*time.Second) {
				return
			}
			state = stateReconnecting
			continue
		}
		state = stateSubscribed

		pingDone := make(chan struct{})
		go func() {
			defer close(pingDone)
			ticker := time.NewTicker(20 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := sess.Ping(); err != nil {
						return
					}
				}
			}
		}()

		state = stateStreaming
		readErr := sess.ReadLoop(ctx, func(env okx.WSEnvelope) {
			if msg, ok := decode(name, env); ok {
				select {
				case out <- msg:
				case <-ctx.Done():
				}
			}
		})
		sess.Close()
		<-pingDone

		if ctx.Err() != nil {
			return
		}

		state = stateError
		if readErr != nil {
			log.Warn().Err(readErr).Str("state", state.String()).Msg("collector: session error, reconnecting")
		}
		if !sleepOrDone(ctx, 5*time.Second) {
			return
		}
		state = stateReconnecting
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
