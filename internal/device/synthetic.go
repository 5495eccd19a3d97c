package device

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// syntheticDriver generates PCM frames on a wall-clock ticker instead of
// reading from real hardware. It exists so the ingestion pipeline can be
// exercised deterministically in tests and in --driver=synthetic smoke runs
// without a sound card, per spec §4.1's Synthetic variant.
type syntheticDriver struct {
	opts FactoryOptions

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu    sync.Mutex
	phase float64
	rng   *rand.Rand
}

func newSyntheticDriver(opts FactoryOptions) *syntheticDriver {
	if opts.SyntheticWaveform == "" {
		opts.SyntheticWaveform = WaveformSine
	}
	if opts.SyntheticFrequencyHz == 0 {
		opts.SyntheticFrequencyHz = 440
	}
	return &syntheticDriver{
		opts: opts,
		rng:  rand.New(rand.NewSource(1)),
	}
}

func (d *syntheticDriver) Enumerate() ([]Descriptor, error) {
	return []Descriptor{d.descriptor()}, nil
}

func (d *syntheticDriver) DefaultDevice() (*Descriptor, error) {
	desc := d.descriptor()
	return &desc, nil
}

func (d *syntheticDriver) descriptor() Descriptor {
	return Descriptor{
		ID:                "synthetic",
		HumanName:         "Synthetic (" + string(d.opts.SyntheticWaveform) + ")",
		IsDefault:         true,
		MaxInputChannels:  1,
		DefaultSampleRate: 48000,
	}
}

func (d *syntheticDriver) Start(cfg Config, _ string, onFrame FrameFunc) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	if !d.running.CompareAndSwap(false, true) {
		return nil
	}
	d.stopCh = make(chan struct{})

	samples := frameSamples(cfg)
	interval := frameDuration(cfg)
	freq := d.opts.SyntheticFrequencyHz
	sampleRate := float64(cfg.SampleRate)
	waveform := d.opts.SyntheticWaveform

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		buf := make([]int16, samples)
		for {
			select {
			case <-d.stopCh:
				return
			case <-ticker.C:
			}
			d.mu.Lock()
			for i := 0; i < samples; i++ {
				var v float64
				switch waveform {
				case WaveformSilence:
					v = 0
				case WaveformNoise:
					v = d.rng.Float64()*2 - 1
				default:
					v = math.Sin(d.phase)
					d.phase += 2 * math.Pi * freq / sampleRate
					if d.phase > 2*math.Pi {
						d.phase -= 2 * math.Pi
					}
				}
				buf[i] = int16(v * 32767 * 0.2)
			}
			d.mu.Unlock()
			if onFrame != nil {
				onFrame(buf)
			}
		}
	}()
	return nil
}

func (d *syntheticDriver) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	close(d.stopCh)
	d.wg.Wait()
}

func (d *syntheticDriver) IsRunning() bool { return d.running.Load() }
