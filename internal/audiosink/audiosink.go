// ABOUTME: Local audio output contract and its oto.v3-backed implementation
// ABOUTME: Volume/mute are applied in software before handing samples to the device
package audiosink

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"

	"github.com/ebitengine/oto/v3"
)

// Output is the abstract local audio output device: initialize once
// with the session's format, then Play each chunk's interleaved int16
// samples as they become due.
type Output interface {
	Initialize(sampleRate, channels int) error
	Play(interleaved []byte) error
	SetVolume(volume int)
	SetMuted(muted bool)
	Volume() int
	Muted() bool
	Close() error
}

// OtoOutput is the oto.v3-backed Output used by the example receiver
// binary.
type OtoOutput struct {
	ctx    *oto.Context
	ready  bool
	volume int
	muted  bool
}

// NewOtoOutput creates an output with full, unmuted volume by default.
func NewOtoOutput() *OtoOutput {
	return &OtoOutput{volume: 100}
}

// Initialize opens the oto context for the given format. Safe to call
// again (e.g. on a codec/format change): a prior context is left
// alone; oto has no notion of reconfiguring an existing context. The
// receiver calls Initialize on the same OtoOutput at every
// session/start; it does not create a fresh one.
func (o *OtoOutput) Initialize(sampleRate, channels int) error {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("audiosink: failed to create oto context: %w", err)
	}
	<-readyChan

	o.ctx = ctx
	o.ready = true
	log.Printf("audiosink: initialized %dHz, %d channels", sampleRate, channels)
	return nil
}

// Play applies the current volume/mute and writes interleaved int16 LE
// samples to a fresh oto player.
func (o *OtoOutput) Play(interleaved []byte) error {
	if !o.ready {
		return fmt.Errorf("audiosink: not initialized")
	}

	samples := make([]int16, len(interleaved)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(interleaved[i*2:]))
	}

	multiplier := volumeMultiplier(o.volume, o.muted)
	out := make([]byte, len(interleaved))
	for i, s := range samples {
		scaled := int16(float64(s) * multiplier)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(scaled))
	}

	player := o.ctx.NewPlayer(bytes.NewReader(out))
	player.Play()
	return nil
}

// SetVolume clamps to [0, 100].
func (o *OtoOutput) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	o.volume = volume
}

func (o *OtoOutput) SetMuted(muted bool) { o.muted = muted }
func (o *OtoOutput) Volume() int         { return o.volume }
func (o *OtoOutput) Muted() bool         { return o.muted }

// Close suspends the oto context. The Output is unusable afterward.
func (o *OtoOutput) Close() error {
	if o.ctx != nil {
		o.ctx.Suspend()
		o.ready = false
	}
	return nil
}

func volumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0
	}
	return float64(volume) / 100.0
}
