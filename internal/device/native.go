package device

import (
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/rtstt/ingestcore/internal/rtstterr"
)

// nativeDriver wraps gordonklaus/portaudio's blocking-stream API. Unlike the
// portable (malgo) driver, portaudio's blocking Read delivers frames on a
// goroutine we own outright, so there is no separate ring/processing split:
// the read loop itself plays the role of the real-time thread and must obey
// the same no-alloc-in-steady-state discipline once warmed up.
type nativeDriver struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func newNativeDriver() *nativeDriver {
	return &nativeDriver{}
}

// nativeSubsystemAvailable reports whether portaudio can initialize at all
// on this host. Cheap best-effort probe used by the auto-detect factory path.
func nativeSubsystemAvailable() bool {
	if err := portaudio.Initialize(); err != nil {
		return false
	}
	defer portaudio.Terminate()
	_, err := portaudio.DefaultInputDevice()
	return err == nil
}

func (d *nativeDriver) Enumerate() ([]Descriptor, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, rtstterr.Wrap(rtstterr.KindDevice, err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, rtstterr.Wrap(rtstterr.KindDevice, err)
	}
	defaultIn, _ := portaudio.DefaultInputDevice()

	descs := make([]Descriptor, 0, len(devices))
	for _, dev := range devices {
		if dev.MaxInputChannels <= 0 {
			continue
		}
		descs = append(descs, Descriptor{
			ID:                dev.Name,
			HumanName:         dev.Name,
			IsDefault:         defaultIn != nil && dev.Name == defaultIn.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			DefaultSampleRate: int(dev.DefaultSampleRate),
		})
	}
	return descs, nil
}

func (d *nativeDriver) DefaultDevice() (*Descriptor, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, rtstterr.Wrap(rtstterr.KindDevice, err)
	}
	defer portaudio.Terminate()

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, rtstterr.Wrap(rtstterr.KindDevice, err)
	}
	return &Descriptor{
		ID:                dev.Name,
		HumanName:         dev.Name,
		IsDefault:         true,
		MaxInputChannels:  dev.MaxInputChannels,
		DefaultSampleRate: int(dev.DefaultSampleRate),
	}, nil
}

func (d *nativeDriver) Start(cfg Config, deviceID string, onFrame FrameFunc) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return rtstterr.Wrapf(rtstterr.KindDevice, "portaudio init: %v", err)
	}

	dev, err := resolveInputDevice(deviceID)
	if err != nil {
		portaudio.Terminate()
		return err
	}

	samples := frameSamples(cfg)
	inputBuf := make([]int32, samples*dev.MaxInputChannels)
	channels := dev.MaxInputChannels
	if channels > 2 {
		channels = 2
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: samples,
	}

	stream, err := portaudio.OpenStream(params, inputBuf)
	if err != nil {
		portaudio.Terminate()
		return rtstterr.Wrapf(rtstterr.KindDevice, "open stream: %v", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return rtstterr.Wrapf(rtstterr.KindDevice, "start stream: %v", err)
	}

	d.stream = stream
	d.stopCh = make(chan struct{})
	d.running.Store(true)

	d.wg.Add(1)
	go d.readLoop(stream, inputBuf, channels, onFrame)
	return nil
}

func (d *nativeDriver) readLoop(stream *portaudio.Stream, inputBuf []int32, channels int, onFrame FrameFunc) {
	defer d.wg.Done()
	mono := make([]int16, len(inputBuf)/channels)
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}
		if err := stream.Read(); err != nil {
			return
		}
		downmixInt32ToMonoInt16(inputBuf, channels, mono)
		if onFrame != nil {
			onFrame(mono)
		}
	}
}

func (d *nativeDriver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	close(d.stopCh)
	d.wg.Wait()
	if d.stream != nil {
		d.stream.Stop()
		d.stream.Close()
		d.stream = nil
	}
	portaudio.Terminate()
}

func (d *nativeDriver) IsRunning() bool { return d.running.Load() }

func resolveInputDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, rtstterr.Wrap(rtstterr.KindDevice, err)
		}
		return dev, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, rtstterr.Wrap(rtstterr.KindDevice, err)
	}
	for _, dev := range devices {
		if dev.Name == deviceID && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, deviceNotFoundErr(deviceID)
}
