package device

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/rtstt/ingestcore/internal/rtstterr"
)

// portableDriver wraps the gen2brain/malgo bindings (miniaudio) for
// cross-platform capture. It is the "PortableCrossPlatform" variant: the
// preferred fallback when a native backend is unavailable.
//
// Structure mirrors the teacher's capture.go: a malgo device callback writes
// raw bytes into a lock-free ring of pooled float32 slots, and a dedicated
// goroutine drains that ring, converts to int16, resamples if needed, and
// invokes the caller's FrameFunc. The malgo callback itself never blocks,
// allocates (beyond the pool), or calls into the caller.
type portableDriver struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	ring *floatRing

	cfg              Config
	deviceSampleRate uint32
	resampler        *Resampler
	polyphase        *PolyphaseResampler
	onFrame          FrameFunc
}

func newPortableDriver() *portableDriver {
	return &portableDriver{}
}

func (d *portableDriver) Enumerate() ([]Descriptor, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, rtstterr.Wrap(rtstterr.KindDevice, err)
	}
	defer ctx.Uninit()
	defer ctx.Free()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, rtstterr.Wrap(rtstterr.KindDevice, err)
	}

	descs := make([]Descriptor, 0, len(infos))
	for _, info := range infos {
		descs = append(descs, Descriptor{
			ID:                info.ID.String(),
			HumanName:         info.Name(),
			IsDefault:         info.IsDefault != 0,
			MaxInputChannels:  int(info.MaxChannels),
			DefaultSampleRate: int(info.MaxSampleRate),
		})
	}
	return descs, nil
}

func (d *portableDriver) DefaultDevice() (*Descriptor, error) {
	descs, err := d.Enumerate()
	if err != nil {
		return nil, err
	}
	for i := range descs {
		if descs[i].IsDefault {
			return &descs[i], nil
		}
	}
	if len(descs) > 0 {
		return &descs[0], nil
	}
	return nil, nil
}

func (d *portableDriver) Start(cfg Config, deviceID string, onFrame FrameFunc) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	if d.running.Load() {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", rtstterr.ErrDeviceUnavailable, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = uint32(cfg.FrameSizeMs)
	if deviceID != "" {
		id, err := malgo.ParseDeviceID(deviceID)
		if err != nil {
			ctx.Uninit()
			ctx.Free()
			return deviceNotFoundErr(deviceID)
		}
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	// Query the actual rate the device will run at; it may differ from the
	// requested rate.
	probe, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: %v", rtstterr.ErrDeviceUnavailable, err)
	}
	deviceSampleRate := probe.SampleRate()
	probe.Uninit()

	d.cfg = cfg
	d.deviceSampleRate = deviceSampleRate
	d.ring = newFloatRing(ringBufferSlots)
	d.stopCh = make(chan struct{})
	d.onFrame = onFrame
	d.ctx = ctx

	if deviceSampleRate != uint32(cfg.SampleRate) {
		if deviceSampleRate > uint32(cfg.SampleRate)*3/2 {
			d.polyphase = NewPolyphaseResampler(int(deviceSampleRate), cfg.SampleRate)
		} else {
			d.resampler = NewResampler(int(deviceSampleRate), cfg.SampleRate)
		}
	}

	onRecvFrames := func(_, pInput []byte, framecount uint32) {
		if !d.running.Load() {
			return
		}
		samples := bytesToFloat32Pooled(pInput)
		if len(samples) > 0 {
			d.ring.push(samples)
		}
		returnFloat32Buffer(samples)
	}

	dev, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: %v", rtstterr.ErrDeviceUnavailable, err)
	}
	d.device = dev
	d.running.Store(true)

	d.wg.Add(1)
	go d.processLoop()

	if err := dev.Start(); err != nil {
		d.running.Store(false)
		close(d.stopCh)
		d.wg.Wait()
		dev.Uninit()
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: %v", rtstterr.ErrDeviceUnavailable, err)
	}
	return nil
}

func (d *portableDriver) processLoop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}
		samples := d.ring.pop()
		if samples == nil {
			select {
			case <-d.stopCh:
				return
			case <-time.After(100 * time.Microsecond):
			}
			continue
		}

		if d.polyphase != nil {
			samples = d.polyphase.Resample(samples)
		} else if d.resampler != nil {
			samples = d.resampler.Resample(samples)
		}

		if d.onFrame != nil {
			d.onFrame(floatToInt16(samples))
		}
	}
}

func (d *portableDriver) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	close(d.stopCh)
	d.wg.Wait()
	if d.device != nil {
		d.device.Stop()
		d.device.Uninit()
		d.device = nil
	}
	if d.ctx != nil {
		_ = d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}
	slog.Info("portable driver stopped")
}

func (d *portableDriver) IsRunning() bool { return d.running.Load() }

// --- lock-free float32 ring, grounded on the teacher's capture.go ringBuffer ---

const ringBufferSlots = 128
const maxSamplesPerSlot = 4096

type floatSlot struct {
	samples []float32
	n       int
}

type floatRing struct {
	slots     []floatSlot
	size      uint64
	head      atomic.Uint64
	tail      atomic.Uint64
	dropCount atomic.Uint64
}

func newFloatRing(size int) *floatRing {
	r := &floatRing{slots: make([]floatSlot, size), size: uint64(size)}
	for i := range r.slots {
		r.slots[i].samples = make([]float32, maxSamplesPerSlot)
	}
	return r
}

func (r *floatRing) push(samples []float32) bool {
	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail >= r.size {
		r.dropCount.Add(1)
		return false
	}
	slot := &r.slots[head%r.size]
	n := copy(slot.samples, samples)
	slot.n = n
	r.head.Add(1)
	return true
}

func (r *floatRing) pop() []float32 {
	head := r.head.Load()
	tail := r.tail.Load()
	if head == tail {
		return nil
	}
	slot := &r.slots[tail%r.size]
	out := make([]float32, slot.n)
	copy(out, slot.samples[:slot.n])
	r.tail.Add(1)
	return out
}

var float32Pool = sync.Pool{
	New: func() any {
		buf := make([]float32, maxSamplesPerSlot)
		return &buf
	},
}

func bytesToFloat32Pooled(data []byte) []float32 {
	numSamples := len(data) / 4
	pBuf := float32Pool.Get().(*[]float32)
	if cap(*pBuf) < numSamples {
		*pBuf = make([]float32, numSamples)
	}
	samples := (*pBuf)[:numSamples]
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}

func returnFloat32Buffer(samples []float32) {
	if samples == nil {
		return
	}
	buf := samples[:cap(samples)]
	float32Pool.Put(&buf)
}

func floatToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int16(s * 32767)
	}
	return out
}
