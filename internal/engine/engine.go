// Package engine owns the lifecycle of one noise-cancelling stream session:
// read a block from the microphone, denoise it, write it to the virtual
// output, until stopped or the stream breaks.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/clearmic/clearmic/internal/audio"
	"github.com/clearmic/clearmic/internal/denoise"
)

type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrSessionActive is returned by Start while a session is live. The running
// session is left untouched.
var ErrSessionActive = errors.New("a stream session is already active")

// StatusUpdater is an interface for surfacing state changes (e.g., tray icon).
// Calls arrive from the engine's background goroutine; implementations must
// marshal to their own event loop.
type StatusUpdater interface {
	SetIdle()
	SetStarting()
	SetRunning()
	SetStopping()
	SetFailed(reason string)
}

type Config struct {
	Backend        audio.Backend
	Denoiser       denoise.Processor
	DenoiseEnabled bool
	SampleRate     int
	BlockSize      int
	QueueDepth     int // hand-off ring depth, default 8
	Logger         zerolog.Logger
	StatusUpdater  StatusUpdater // Optional - can be nil
}

type Engine struct {
	backend    audio.Backend
	proc       denoise.Processor
	sampleRate int
	blockSize  int
	queueDepth int
	log        zerolog.Logger
	status     StatusUpdater

	denoiseOn atomic.Bool
	dropped   atomic.Uint64
	skipped   atomic.Uint64

	mu      sync.Mutex
	state   State
	lastErr error
	sess    *session
}

// session is the cancellation handle for one run of the stream goroutines.
type session struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (s *session) cancel() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func New(cfg Config) *Engine {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 8
	}
	e := &Engine{
		backend:    cfg.Backend,
		proc:       cfg.Denoiser,
		sampleRate: cfg.SampleRate,
		blockSize:  cfg.BlockSize,
		queueDepth: cfg.QueueDepth,
		log:        cfg.Logger,
		status:     cfg.StatusUpdater,
	}
	e.denoiseOn.Store(cfg.DenoiseEnabled)
	return e
}

// Start validates the device pair and brings up a session in the background.
// Open failures surface through the Failed state, not through the returned
// error.
func (e *Engine) Start(in, out audio.Device) error {
	e.mu.Lock()
	if e.state != StateIdle && e.state != StateFailed {
		e.mu.Unlock()
		return ErrSessionActive
	}
	if err := audio.Validate(in, out); err != nil {
		e.mu.Unlock()
		return err
	}
	sess := &session{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	e.sess = sess
	e.state = StateStarting
	e.lastErr = nil
	e.mu.Unlock()
	e.notify(StateStarting, "")

	e.log.Info().Str("input", in.Name).Str("output", out.Name).Msg("Starting noise cancelling")
	go e.run(in, out, sess)
	return nil
}

// Stop requests a cooperative stop and waits for the session goroutines to
// exit and release the stream. Safe to call in any state.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state != StateStarting && e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	sess := e.sess
	e.state = StateStopping
	e.mu.Unlock()
	e.notify(StateStopping, "")

	sess.cancel()
	<-sess.done
}

// Close stops any session and shuts down the audio backend.
func (e *Engine) Close() error {
	e.Stop()

	var result *multierror.Error
	if err := e.backend.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (e *Engine) run(in, out audio.Device, sess *session) {
	defer close(sess.done)

	stream, err := e.backend.OpenDuplex(in, out, e.sampleRate, e.blockSize)
	if err != nil {
		err = fmt.Errorf("open duplex stream: %w", err)
		e.log.Error().Err(err).Msg("Stream failed to start")
		e.setState(StateFailed, err)
		return
	}

	// Stop may have been requested while the stream was opening
	select {
	case <-sess.stop:
		stream.Close()
		e.setState(StateIdle, nil)
		return
	default:
	}

	e.proc.Reset()
	e.dropped.Store(0)
	e.skipped.Store(0)
	e.setState(StateRunning, nil)
	e.log.Info().
		Int("sample_rate", e.sampleRate).
		Int("block_size", e.blockSize).
		Int("output_channels", stream.OutputChannels()).
		Msg("Stream running")

	queue := make(chan []float32, e.queueDepth)
	readerErr := make(chan error, 1)
	go func() {
		readerErr <- e.readLoop(stream, queue, sess.stop)
	}()

	procErr := e.processLoop(stream, queue, sess.stop)

	// Make sure the reader unblocks before the stream handle goes away
	sess.cancel()
	rErr := <-readerErr

	if closeErr := stream.Close(); closeErr != nil {
		e.log.Warn().Err(closeErr).Msg("Error closing stream")
	}

	if err := firstError(rErr, procErr); err != nil {
		e.log.Error().Err(err).Uint64("dropped", e.dropped.Load()).Msg("Stream failed")
		e.setState(StateFailed, err)
		return
	}

	e.log.Info().
		Uint64("dropped", e.dropped.Load()).
		Uint64("skipped", e.skipped.Load()).
		Msg("Stream stopped")
	e.setState(StateIdle, nil)
}

// readLoop pulls one block per device period and hands it to the processor
// through the bounded queue. When the queue is full the oldest pending block
// is dropped; live audio has no replay value, staying current beats staying
// complete. Sole sender and closer of queue.
func (e *Engine) readLoop(stream audio.Stream, queue chan []float32, stop <-chan struct{}) error {
	defer close(queue)

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		block := make([]float32, e.blockSize)
		if err := stream.Read(block); err != nil {
			if audio.Transient(err) {
				e.skipped.Add(1)
				e.log.Debug().Err(err).Msg("Transient read error, block skipped")
				continue
			}
			return fmt.Errorf("read block: %w", err)
		}

		select {
		case queue <- block:
		default:
			select {
			case <-queue:
				e.dropped.Add(1)
			default:
			}
			select {
			case queue <- block:
			default:
				e.dropped.Add(1)
			}
		}
	}
}

// processLoop denoises queued blocks and writes them out in arrival order,
// checking for a stop request once per block.
func (e *Engine) processLoop(stream audio.Stream, queue <-chan []float32, stop <-chan struct{}) error {
	outCh := stream.OutputChannels()
	frame := make([]float32, e.blockSize*outCh)

	for {
		select {
		case <-stop:
			return nil
		case block, ok := <-queue:
			if !ok {
				// reader exited; its error (if any) is reported by run
				return nil
			}
			cleaned := block
			if e.denoiseOn.Load() {
				cleaned = e.proc.Process(block)
			}
			tile(cleaned, frame, outCh)
			if err := stream.Write(frame); err != nil {
				if audio.Transient(err) {
					e.skipped.Add(1)
					e.log.Debug().Err(err).Msg("Transient write error, block skipped")
					continue
				}
				return fmt.Errorf("write block: %w", err)
			}
		}
	}
}

// tile duplicates a mono block across every output channel, interleaved.
func tile(src, dst []float32, channels int) {
	if channels == 1 {
		copy(dst, src)
		return
	}
	for i, v := range src {
		for c := 0; c < channels; c++ {
			dst[i*channels+c] = v
		}
	}
}

func (e *Engine) setState(s State, err error) {
	e.mu.Lock()
	e.state = s
	if err != nil {
		e.lastErr = err
	}
	e.mu.Unlock()

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	e.notify(s, reason)
}

func (e *Engine) notify(s State, reason string) {
	if e.status == nil {
		return
	}
	switch s {
	case StateIdle:
		e.status.SetIdle()
	case StateStarting:
		e.status.SetStarting()
	case StateRunning:
		e.status.SetRunning()
	case StateStopping:
		e.status.SetStopping()
	case StateFailed:
		e.status.SetFailed(reason)
	}
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// SetDenoiseEnabled toggles the denoise step; when off, blocks pass through
// unchanged. Takes effect on the next block.
func (e *Engine) SetDenoiseEnabled(enabled bool) {
	e.denoiseOn.Store(enabled)
	e.log.Info().Bool("enabled", enabled).Msg("Noise reduction toggled")
}

// DenoiseEnabled reports whether the denoise step is active.
func (e *Engine) DenoiseEnabled() bool { return e.denoiseOn.Load() }

// State returns the current session state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastError returns the failure retained from the most recent session, if any.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// DroppedFrames returns how many blocks were discarded under backpressure
// during the current or most recent session.
func (e *Engine) DroppedFrames() uint64 { return e.dropped.Load() }

// SkippedBlocks returns how many blocks were skipped due to transient
// overflow/underrun errors.
func (e *Engine) SkippedBlocks() uint64 { return e.skipped.Load() }

// Devices returns the device table split by direction capability.
func (e *Engine) Devices() (inputs, outputs []audio.Device, _ error) {
	devices, err := e.backend.Devices()
	if err != nil {
		return nil, nil, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		if d.IsInput() {
			inputs = append(inputs, d)
		}
		if d.IsOutput() {
			outputs = append(outputs, d)
		}
	}
	return inputs, outputs, nil
}

// DefaultDevices picks the system default microphone and the most plausible
// virtual output, for first-run selection.
func (e *Engine) DefaultDevices() (in, out audio.Device, err error) {
	in, err = e.backend.DefaultInputDevice()
	if err != nil {
		return audio.Device{}, audio.Device{}, err
	}
	devices, err := e.backend.Devices()
	if err != nil {
		return audio.Device{}, audio.Device{}, err
	}
	out, ok := audio.DefaultVirtualOutput(devices)
	if !ok {
		return audio.Device{}, audio.Device{}, errors.New("no output device available")
	}
	return in, out, nil
}
