package audio

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/hajimehoshi/oto/v2"
)

const (
	defaultSampleRate = 44100
	defaultChannels   = 2
	bytesPerSample    = 2 // signed 16-bit

	// About 100ms of 44100Hz stereo 16-bit audio. A small staging buffer
	// keeps the decoder from racing far ahead of the device, so pause and
	// stop take effect promptly.
	stagingLimit = defaultSampleRate / 10 * defaultChannels * bytesPerSample
)

// OtoOutput feeds PCM to the sound device through oto. The oto player pulls
// from the staging buffer via Read; the decoder pushes into it via Write and
// is throttled when the buffer is full.
type OtoOutput struct {
	otoCtx     *oto.Context
	player     oto.Player
	sampleRate int
	channels   int

	mu      sync.Mutex
	pull    *sync.Cond // signaled when the player drains the buffer
	push    *sync.Cond // signaled when pause state changes or the output closes
	staging bytes.Buffer
	volume  float64
	paused  bool
	closed  bool
}

// NewOtoOutput opens the default audio device at 44100Hz stereo
func NewOtoOutput() (*OtoOutput, error) {
	return NewOtoOutputWithConfig(defaultSampleRate, defaultChannels)
}

// NewOtoOutputWithConfig opens the default audio device with the given format
func NewOtoOutputWithConfig(sampleRate, channels int) (*OtoOutput, error) {
	otoCtx, ready, err := oto.NewContext(sampleRate, channels, bytesPerSample)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	o := &OtoOutput{
		otoCtx:     otoCtx,
		sampleRate: sampleRate,
		channels:   channels,
		volume:     1.0,
	}
	o.pull = sync.NewCond(&o.mu)
	o.push = sync.NewCond(&o.mu)
	o.player = otoCtx.NewPlayer(o)
	return o, nil
}

// Read supplies PCM to the oto player. Blocks while paused; an empty buffer
// yields silence so the device stream stays alive between tracks.
func (o *OtoOutput) Read(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for o.paused && !o.closed {
		o.push.Wait()
	}
	if o.closed {
		return 0, io.EOF
	}

	if o.staging.Len() == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n, err := o.staging.Read(p)
	if n > 0 {
		scaleSamples(p[:n], o.volume)
		o.pull.Signal()
	}
	return n, err
}

// scaleSamples applies a volume factor to 16-bit little-endian PCM in place
func scaleSamples(data []byte, vol float64) {
	if vol >= 1.0 {
		return
	}
	for i := 0; i+1 < len(data); i += 2 {
		s := int16(data[i]) | int16(data[i+1])<<8
		s = int16(float64(s) * vol)
		data[i] = byte(s)
		data[i+1] = byte(s >> 8)
	}
}

// Write stages PCM from the decoder, blocking while the buffer is full so
// decoding is throttled to playback speed
func (o *OtoOutput) Write(data []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for o.staging.Len() >= stagingLimit && !o.closed {
		o.pull.Wait()
	}
	if o.closed {
		return 0, io.ErrClosedPipe
	}

	n, err := o.staging.Write(data)
	if err != nil {
		return n, err
	}

	// Auto-start the device unless explicitly paused
	if o.player != nil && !o.player.IsPlaying() && !o.paused {
		o.player.Play()
	}
	return n, nil
}

// Pause halts the device. The paused flag is set first so a concurrent Write
// cannot restart the player.
func (o *OtoOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused = true
	if o.player != nil && o.player.IsPlaying() {
		o.player.Pause()
	}
}

// Resume restarts the device and wakes any Read blocked on the pause flag
func (o *OtoOutput) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused = false
	o.push.Broadcast()
	if o.player != nil && !o.player.IsPlaying() {
		o.player.Play()
	}
}

// Stop halts the device and discards staged audio so the next stream does
// not begin with leftover samples
func (o *OtoOutput) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused = false
	if o.player != nil {
		o.player.Pause()
	}
	o.staging.Reset()
	o.pull.Broadcast()
}

// SetVolume sets the playback volume, clamped to 0.0 - 1.0
func (o *OtoOutput) SetVolume(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = min(max(v, 0), 1)
}

// GetVolume returns the current volume
func (o *OtoOutput) GetVolume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// SampleRate returns the device sample rate
func (o *OtoOutput) SampleRate() int {
	return o.sampleRate
}

// Channels returns the device channel count
func (o *OtoOutput) Channels() int {
	return o.channels
}

// Close releases the device and unblocks any waiting Read or Write
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closed = true
	o.push.Broadcast()
	o.pull.Broadcast()

	if o.player != nil {
		if err := o.player.Close(); err != nil {
			return err
		}
	}
	return nil
}

var _ io.Reader = (*OtoOutput)(nil)
