// Package audio is the playback engine delegate: it decodes audio files via
// FFmpeg and feeds PCM to an Oto output. It knows nothing about queues,
// schedules, or persistence; the session layer owns those.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// State represents the current state of the engine
type State string

const (
	StateStopped State = "stopped"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// Status represents the current engine status
type Status struct {
	State          State   `json:"state"`
	URI            string  `json:"uri,omitempty"`
	PositionMillis int64   `json:"positionMillis"`
	DurationMillis int64   `json:"durationMillis"`
	Volume         float64 `json:"volume"`
}

// TrackEndCallback is called when a track finishes playing naturally
type TrackEndCallback func(uri string)

// Output is the interface for audio output backends
type Output interface {
	io.WriteCloser
	SampleRate() int
	Channels() int
	Pause()
	Resume()
	Stop()
	SetVolume(v float64)
	GetVolume() float64
}

// Decoder is the interface for audio decoders
type Decoder interface {
	DecodeFrom(ctx context.Context, uri string, output Output, startMs int64) error
	Duration(uri string) (time.Duration, error)
	Close() error
}

// Engine drives a single audio stream at a time. Play operations are
// serialized; a new Play supersedes the running one and waits for its
// goroutine to exit before starting.
type Engine struct {
	mu         sync.RWMutex
	playbackMu sync.Mutex // serializes all play/stop operations
	state      State
	currentURI string
	position   int64
	duration   int64

	// Stream tracking - ensures only one playback at a time
	streamID   uint64
	streamDone chan struct{} // closed when the current stream's goroutine exits

	cancelFunc    context.CancelFunc
	wasManualStop bool // true if playback was stopped manually (not track end)

	onTrackEnd TrackEndCallback

	output  Output
	decoder Decoder
}

// NewEngine creates an engine with the default Oto output and FFmpeg decoder
func NewEngine() (*Engine, error) {
	output, err := NewOtoOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to create audio output: %w", err)
	}

	decoder, err := NewFFmpegDecoder()
	if err != nil {
		output.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return New(output, decoder), nil
}

// New creates an engine from explicit output and decoder backends
func New(output Output, decoder Decoder) *Engine {
	return &Engine{
		state:   StateStopped,
		output:  output,
		decoder: decoder,
	}
}

// SetOnTrackEnd sets a callback for tracks that finish playing naturally
func (e *Engine) SetOnTrackEnd(callback TrackEndCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrackEnd = callback
}

// Play starts playback of the given source from the given position.
// Any running stream is stopped and fully drained first.
func (e *Engine) Play(ctx context.Context, uri string, startMs int64) error {
	e.playbackMu.Lock()
	defer e.playbackMu.Unlock()

	e.mu.Lock()

	// Stop any current playback and WAIT for its goroutine to exit
	if e.state == StatePlaying || e.state == StatePaused {
		e.stopPlaybackLocked()
		oldDone := e.streamDone
		e.mu.Unlock()

		if oldDone != nil {
			<-oldDone
		}

		e.mu.Lock()
	}

	duration, err := e.decoder.Duration(uri)
	if err != nil {
		e.state = StateStopped
		e.mu.Unlock()
		return fmt.Errorf("failed to open source %s: %w", uri, err)
	}

	e.streamID++
	e.streamDone = make(chan struct{})
	currentStream := e.streamID
	doneChan := e.streamDone

	e.currentURI = uri
	e.position = startMs
	e.duration = duration.Milliseconds()
	e.state = StatePlaying
	e.wasManualStop = false

	playbackCtx, cancel := context.WithCancel(context.Background())
	e.cancelFunc = cancel

	e.mu.Unlock()

	go func() {
		defer close(doneChan)
		e.playbackLoop(playbackCtx, uri, startMs, currentStream)
	}()

	return nil
}

func (e *Engine) playbackLoop(ctx context.Context, uri string, startMs int64, streamID uint64) {
	log.Printf("[ENGINE] Starting playback from %dms (stream %d): %s", startMs, streamID, uri)

	e.mu.RLock()
	if e.streamID != streamID {
		e.mu.RUnlock()
		return
	}
	e.mu.RUnlock()

	// Track elapsed wall time accounting for pauses
	elapsedBeforePause := time.Duration(startMs) * time.Millisecond
	playStartTime := time.Now()

	positionDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()

		wasPlaying := true

		for {
			select {
			case <-positionDone:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.mu.Lock()
				if e.streamID != streamID {
					e.mu.Unlock()
					return
				}
				if e.state == StatePlaying {
					if !wasPlaying {
						// Just resumed - reset start time
						playStartTime = time.Now()
						wasPlaying = true
					}
					e.position = (elapsedBeforePause + time.Since(playStartTime)).Milliseconds()
					if e.position >= e.duration {
						e.position = e.duration
					}
				} else if e.state == StatePaused && wasPlaying {
					// Just paused - save elapsed time
					elapsedBeforePause += time.Since(playStartTime)
					wasPlaying = false
				}
				e.mu.Unlock()
			}
		}
	}()

	err := e.decoder.DecodeFrom(ctx, uri, e.output, startMs)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[ENGINE] Decode error: %v", err)
	}

	e.mu.RLock()
	if e.streamID != streamID {
		e.mu.RUnlock()
		close(positionDone)
		return
	}
	remainingMs := e.duration - e.position
	e.mu.RUnlock()

	// The buffer needs time to drain through the audio output
	if remainingMs > 0 && err == nil {
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(remainingMs+500) * time.Millisecond):
		}
	}

	close(positionDone)

	e.mu.Lock()

	if e.streamID == streamID && e.currentURI == uri {
		wasManual := e.wasManualStop
		callback := e.onTrackEnd

		e.state = StateStopped
		e.currentURI = ""
		e.position = 0

		e.mu.Unlock()

		// A naturally-ended track advances the queue; a manual stop does not
		if !wasManual && callback != nil {
			callback(uri)
		}
	} else {
		e.mu.Unlock()
	}
}

// Pause pauses playback (idempotent)
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePlaying {
		return nil
	}

	e.state = StatePaused
	e.output.Pause()

	log.Printf("[ENGINE] Paused at position %dms", e.position)
	return nil
}

// Resume resumes paused playback (idempotent)
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePaused {
		return nil
	}

	e.state = StatePlaying
	e.output.Resume()

	log.Printf("[ENGINE] Resumed at position %dms", e.position)
	return nil
}

// Stop stops playback
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateStopped {
		return nil
	}

	e.stopPlaybackLocked()
	return nil
}

func (e *Engine) stopPlaybackLocked() {
	e.state = StateStopped
	e.wasManualStop = true

	// Cancel the context first so the decoder process exits immediately
	if e.cancelFunc != nil {
		e.cancelFunc()
		e.cancelFunc = nil
	}

	// Brief pause to let the decoder process the cancellation
	time.Sleep(10 * time.Millisecond)

	e.output.Stop()

	log.Printf("[ENGINE] Stopped playback")

	e.currentURI = ""
	e.position = 0
}

// Seek restarts the current stream at the given position in milliseconds
func (e *Engine) Seek(positionMs int64) error {
	e.mu.Lock()

	if e.state == StateStopped {
		e.mu.Unlock()
		return errors.New("not playing")
	}

	if positionMs < 0 {
		positionMs = 0
	}
	if positionMs > e.duration {
		positionMs = e.duration
	}

	uri := e.currentURI
	wasPlaying := e.state == StatePlaying

	e.stopPlaybackLocked()
	e.mu.Unlock()

	if wasPlaying {
		return e.Play(context.Background(), uri, positionMs)
	}

	// Paused seek: restart the stream paused at the new position
	if err := e.Play(context.Background(), uri, positionMs); err != nil {
		return err
	}
	return e.Pause()
}

// SetVolume sets the playback volume (0.0 - 1.0)
func (e *Engine) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return errors.New("volume must be between 0.0 and 1.0")
	}

	e.output.SetVolume(volume)
	return nil
}

// Volume returns the current playback volume
func (e *Engine) Volume() float64 {
	return e.output.GetVolume()
}

// Status returns the current playback status
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Status{
		State:          e.state,
		URI:            e.currentURI,
		PositionMillis: e.position,
		DurationMillis: e.duration,
		Volume:         e.output.GetVolume(),
	}
}

// Close releases all resources
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.state != StateStopped {
		e.stopPlaybackLocked()
	}
	e.mu.Unlock()

	var errs []error

	if e.decoder != nil {
		if err := e.decoder.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if e.output != nil {
		if err := e.output.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}
