package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/triolabs/wakepc/internal/config"
	"github.com/triolabs/wakepc/internal/logging"
)

const (
	backoffInitial = time.Second
	backoffCap     = 30 * time.Second
	// After this many consecutive failed acquisitions the source gives up
	// and reports a fatal error instead of retrying forever.
	maxConsecutiveFailures = 10
)

// ErrorReporter receives device failures. fatal is true when the source has
// exhausted its retries and stopped producing frames.
type ErrorReporter func(message string, fatal bool)

// Source owns one capture device and fans frames out to subscribers.
// Delivery is non-blocking: a subscriber that stops draining its channel
// loses frames, it never stalls capture or the other subscribers.
type Source struct {
	cfg    config.AudioConfig
	log    logging.Logger
	report ErrorReporter

	mu      sync.Mutex
	subs    map[string]*subscriber
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	// Test seam: replaced in tests to feed synthetic frames without a device.
	runCapture func(ctx context.Context) error
}

type subscriber struct {
	name  string
	ch    chan Frame
	drops atomic.Int64
}

// NewSource creates a Source for the given capture settings. report may be
// nil; device failures are then only logged.
func NewSource(cfg config.AudioConfig, report ErrorReporter) *Source {
	s := &Source{
		cfg:    cfg,
		log:    logging.Tagged("audio"),
		report: report,
		subs:   make(map[string]*subscriber),
	}
	s.runCapture = s.runDevice
	return s
}

// Subscribe registers a named frame consumer with its own bounded buffer.
// The channel is closed when the source stops.
func (s *Source) Subscribe(name string, depth int) <-chan Frame {
	if depth <= 0 {
		depth = 64
	}
	sub := &subscriber{name: name, ch: make(chan Frame, depth)}
	s.mu.Lock()
	s.subs[name] = sub
	s.mu.Unlock()
	return sub.ch
}

// Unsubscribe removes a consumer and closes its channel.
func (s *Source) Unsubscribe(name string) {
	s.mu.Lock()
	sub, ok := s.subs[name]
	if ok {
		delete(s.subs, name)
	}
	s.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Start launches the capture loop. It returns immediately; frames begin
// flowing to subscribers once the device is acquired.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("audio source already started")
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.captureLoop(ctx)
	return nil
}

// Stop releases the device and closes all subscriber channels.
func (s *Source) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	s.mu.Lock()
	for name, sub := range s.subs {
		close(sub.ch)
		delete(s.subs, name)
	}
	s.started = false
	s.cancel = nil
	s.mu.Unlock()
}

// captureLoop keeps the device acquired, retrying with exponential backoff
// after failures. Each retry is reported through the error channel so the
// overlay shows the outage instead of the process dying silently.
func (s *Source) captureLoop(ctx context.Context) {
	defer close(s.done)

	backoff := backoffInitial
	failures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		err := s.runCapture(ctx)
		if ctx.Err() != nil {
			return
		}

		// A run that delivered frames for a while counts as a recovery.
		if time.Since(start) > 5*time.Second {
			backoff = backoffInitial
			failures = 0
		}

		failures++
		msg := "capture stream ended"
		if err != nil {
			msg = err.Error()
		}
		s.log.Errorf("device failure (%d/%d): %s", failures, maxConsecutiveFailures, msg)

		if failures >= maxConsecutiveFailures {
			if s.report != nil {
				s.report(fmt.Sprintf("microphone unavailable after %d attempts: %s", failures, msg), true)
			}
			return
		}
		if s.report != nil {
			s.report(fmt.Sprintf("microphone error, retrying in %s: %s", backoff, msg), false)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > backoffCap {
			backoff = backoffCap
		}
	}
}

// runDevice starts the platform capture process and pumps frames until the
// stream ends or the context is cancelled.
func (s *Source) runDevice(ctx context.Context) error {
	cmd, err := captureCommand(s.cfg.SampleRateHz, s.cfg.Channels, s.cfg.InputDevice)
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	s.log.Infof("capture started: %s (rate=%d ch=%d frame=%dms)",
		cmd.Path, s.cfg.SampleRateHz, s.cfg.Channels, s.cfg.FrameMs)

	// Kill the recorder when the context goes away so ReadFull unblocks.
	go func() {
		<-ctx.Done()
		_ = cmd.Process.Kill()
	}()

	fr := newFrameReader(stdout, s.cfg.SampleRateHz, s.cfg.Channels, s.cfg.FrameMs)
	for {
		pcm, err := fr.next()
		if err != nil {
			_ = cmd.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("capture read: %w", err)
		}
		s.fanOut(Frame{PCM: pcm, SampleRate: s.cfg.SampleRateHz, Time: time.Now()})
	}
}

// fanOut delivers one frame to every subscriber without blocking. Frames are
// shared read-only; subscribers must not mutate the sample slice.
func (s *Source) fanOut(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		select {
		case sub.ch <- f:
		default:
			if n := sub.drops.Add(1); n%250 == 1 {
				s.log.Warnf("subscriber %q lagging, %d frames dropped", sub.name, n)
			}
		}
	}
}
