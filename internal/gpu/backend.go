//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/darkroom/internal/backend"
	"github.com/gogpu/darkroom/internal/kernel"
	"github.com/gogpu/darkroom/internal/resource"
)

// fenceTimeout bounds every wait for submitted work.
const fenceTimeout = 5 * time.Second

// histogramBins is the number of u32 counters in the histogram buffer.
const histogramBins = 4 * 256

// Backend executes the darkroom kernels on a GPU device. It implements
// backend.ComputeBackend.
//
// Backend is safe for concurrent use; operations are serialized.
type Backend struct {
	mu      sync.Mutex
	dev     *Device
	kernels *kernelSet
	pool    *resource.Pool[hal.Buffer]
	live    map[*surface]struct{}
	closed  bool
}

var _ backend.ComputeBackend = (*Backend)(nil)

// surface is a packed RGBA8 image in a pooled storage buffer.
type surface struct {
	owner  *Backend
	buf    hal.Buffer
	width  int
	height int
}

func (s *surface) Size() (int, int) { return s.width, s.height }

func (s *surface) byteSize() uint64 {
	return uint64(s.width) * uint64(s.height) * resource.PackedBytesPerPixel //nolint:gosec // validated on creation
}

// bufferAllocator creates pooled storage buffers.
type bufferAllocator struct {
	device hal.Device
}

func (a bufferAllocator) Alloc(size uint64) (hal.Buffer, error) {
	buf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "darkroom_surface", Size: size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create surface buffer: %w", err)
	}
	return buf, nil
}

func (a bufferAllocator) Free(buf hal.Buffer) {
	a.device.DestroyBuffer(buf)
}

// New builds every compute pipeline on dev. budgetMB caps pooled surface
// memory; values below resource.MinBudgetMB use the default.
func New(dev *Device, budgetMB int) (*Backend, error) {
	if dev == nil || dev.device == nil {
		return nil, ErrUnavailable
	}
	ks, err := newKernelSet(dev.device)
	if err != nil {
		return nil, err
	}
	b := &Backend{
		dev:     dev,
		kernels: ks,
		pool:    resource.NewPool[hal.Buffer](bufferAllocator{device: dev.device}, budgetMB),
		live:    make(map[*surface]struct{}),
	}
	slogger().Debug("gpu: pipelines ready", "adapter", dev.Name())
	return b, nil
}

// Close destroys pipelines and every buffer the backend allocated,
// including those behind surfaces still held by callers. Those surfaces
// become invalid; releasing them afterwards is a no-op. The device is not
// closed.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.live {
		b.dropLocked(s)
	}
	b.pool.Close()
	b.kernels.destroy(b.dev.device)
}

// Trim frees idle pooled buffers. Surfaces in use are unaffected.
func (b *Backend) Trim() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.pool.Trim()
}

// PoolStats reports pooled buffer usage.
func (b *Backend) PoolStats() resource.PoolStats {
	return b.pool.Stats()
}

// Kind returns backend.KindGPU.
func (*Backend) Kind() backend.Kind { return backend.KindGPU }

// Upload packs img into a new device surface.
func (b *Backend) Upload(img *kernel.Image) (backend.Surface, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	size := uint64(img.Width) * uint64(img.Height) * resource.PackedBytesPerPixel //nolint:gosec // non-negative
	if size == 0 {
		return nil, fmt.Errorf("gpu: upload of empty %dx%d image", img.Width, img.Height)
	}
	if size > MaxSurfaceBytes {
		return nil, fmt.Errorf("%w: %dx%d", ErrSurfaceTooLarge, img.Width, img.Height)
	}
	packed, err := resource.PackRGB(img.Pix)
	if err != nil {
		return nil, err
	}

	s, err := b.newSurfaceLocked(img.Width, img.Height)
	if err != nil {
		return nil, err
	}
	b.dev.queue.WriteBuffer(s.buf, 0, packed)
	slogger().Debug("gpu: upload", "width", img.Width, "height", img.Height, "bytes", size)
	return s, nil
}

// Readback copies the surface rows into a pitch-aligned staging buffer,
// strips the padding, and unpacks a new CPU image.
func (b *Backend) Readback(bs backend.Surface) (*kernel.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.ownLocked(bs)
	if err != nil {
		return nil, err
	}

	layout := resource.NewRowLayout(s.width, s.height, resource.PackedBytesPerPixel)
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	stagingSize := uint64(layout.PaddedSize()) //nolint:gosec // positive after Validate

	staging, err := b.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "darkroom_staging", Size: stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer b.dev.device.DestroyBuffer(staging)

	regions := layout.CopyRegions()
	copies := make([]hal.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = hal.BufferCopy{SrcOffset: r.SrcOffset, DstOffset: r.DstOffset, Size: r.Size}
	}

	if err := b.submitLocked("darkroom_readback", func(enc hal.CommandEncoder) {
		enc.CopyBufferToBuffer(s.buf, staging, copies)
	}); err != nil {
		return nil, err
	}

	padded := make([]byte, stagingSize)
	if err := b.dev.queue.ReadBuffer(staging, 0, padded); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	packed, err := layout.Strip(padded)
	if err != nil {
		return nil, err
	}
	rgb, err := resource.UnpackRGB(packed)
	if err != nil {
		return nil, err
	}
	return &kernel.Image{Width: s.width, Height: s.height, Pix: rgb}, nil
}

// Release returns the surface buffer to the pool. After Close it does
// nothing; Close has already freed the buffer.
func (b *Backend) Release(bs backend.Surface) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if s, ok := bs.(*surface); ok && s.owner == b && s.buf != nil {
		b.dropLocked(s)
	}
}

// Rotate implements backend.ComputeBackend. Quarter turns use an exact
// index remap; other angles resample.
func (b *Backend) Rotate(bs backend.Surface, degrees float64, q kernel.Quality) (backend.Surface, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.ownLocked(bs)
	if err != nil {
		return nil, err
	}

	var turns uint32
	switch kernel.NormalizeAngle(degrees) {
	case 0:
		return s, nil
	case 90:
		turns = 1
	case 180:
		turns = 2
	case -90:
		turns = 3
	}

	dw, dh := kernel.RotatedBounds(s.width, s.height, degrees)
	if uint64(dw)*uint64(dh)*resource.PackedBytesPerPixel > MaxSurfaceBytes { //nolint:gosec // positive
		return nil, fmt.Errorf("%w: rotated canvas %dx%d", ErrSurfaceTooLarge, dw, dh)
	}
	params := rotateParams(s.width, s.height, dw, dh, degrees, q, turns)
	return b.mapLocked(b.kernels.rotate, s, dw, dh, params, nil)
}

// Adjust implements backend.ComputeBackend.
func (b *Backend) Adjust(bs backend.Surface, a kernel.Adjust) (backend.Surface, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.ownLocked(bs)
	if err != nil {
		return nil, err
	}
	if a.IsIdentity() {
		return s, nil
	}
	return b.mapLocked(b.kernels.adjust, s, s.width, s.height, adjustParams(a, s.width, s.height), nil)
}

// ApplyLUT implements backend.ComputeBackend.
func (b *Backend) ApplyLUT(bs backend.Surface, lut *[256]uint8) (backend.Surface, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.ownLocked(bs)
	if err != nil {
		return nil, err
	}
	if kernel.IsIdentityLUT(lut) {
		return s, nil
	}

	table := make([]byte, 256*4)
	for i, v := range lut {
		binary.LittleEndian.PutUint32(table[i*4:], uint32(v))
	}
	lutBuf, err := b.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "darkroom_lut", Size: uint64(len(table)),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create lut buffer: %w", err)
	}
	defer b.dev.device.DestroyBuffer(lutBuf)
	b.dev.queue.WriteBuffer(lutBuf, 0, table)

	lutBinding := bufferBinding{buf: lutBuf, size: uint64(len(table))}
	return b.mapLocked(b.kernels.curve, s, s.width, s.height, curveParams(s.width, s.height), &lutBinding)
}

// ApplyMask implements backend.ComputeBackend.
func (b *Backend) ApplyMask(bs backend.Surface, m kernel.Mask) (backend.Surface, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.ownLocked(bs)
	if err != nil {
		return nil, err
	}
	return b.mapLocked(b.kernels.mask, s, s.width, s.height, maskParams(m, s.width, s.height), nil)
}

// Histogram accumulates the surface with workgroup-private bins. The surface
// is not consumed.
func (b *Backend) Histogram(bs backend.Surface) (kernel.Histogram, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.ownLocked(bs)
	if err != nil {
		return kernel.Histogram{}, err
	}

	const binsSize = histogramBins * 4
	binsBuf, err := b.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "darkroom_histogram_bins", Size: binsSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return kernel.Histogram{}, fmt.Errorf("create histogram buffer: %w", err)
	}
	defer b.dev.device.DestroyBuffer(binsBuf)

	staging, err := b.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "darkroom_histogram_staging", Size: binsSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return kernel.Histogram{}, fmt.Errorf("create histogram staging buffer: %w", err)
	}
	defer b.dev.device.DestroyBuffer(staging)

	b.dev.queue.WriteBuffer(binsBuf, 0, make([]byte, binsSize))

	bindings := []bufferBinding{
		{buf: s.buf, size: s.byteSize()},
		{buf: binsBuf, size: binsSize},
	}
	gx, gy := groups(s.width, 16), groups(s.height, 16)
	err = b.dispatchLocked(b.kernels.histogram, histogramParams(s.width, s.height), bindings, gx, gy,
		func(enc hal.CommandEncoder) {
			enc.CopyBufferToBuffer(binsBuf, staging, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: binsSize}})
		})
	if err != nil {
		return kernel.Histogram{}, err
	}

	raw := make([]byte, binsSize)
	if err := b.dev.queue.ReadBuffer(staging, 0, raw); err != nil {
		return kernel.Histogram{}, fmt.Errorf("readback histogram: %w", err)
	}
	var h kernel.Histogram
	for i := 0; i < 256; i++ {
		h.R[i] = binary.LittleEndian.Uint32(raw[i*4:])
		h.G[i] = binary.LittleEndian.Uint32(raw[(256+i)*4:])
		h.B[i] = binary.LittleEndian.Uint32(raw[(512+i)*4:])
		h.L[i] = binary.LittleEndian.Uint32(raw[(768+i)*4:])
	}
	return h, nil
}

// bufferBinding is one storage binding of a dispatch.
type bufferBinding struct {
	buf  hal.Buffer
	size uint64
}

func groups(n, size int) uint32 {
	return uint32((n + size - 1) / size) //nolint:gosec // bounded by MaxSurfaceBytes
}

func (b *Backend) ownLocked(bs backend.Surface) (*surface, error) {
	if b.closed {
		return nil, ErrClosed
	}
	s, ok := bs.(*surface)
	if !ok || s.owner != b || s.buf == nil {
		return nil, backend.ErrForeignSurface
	}
	return s, nil
}

func (b *Backend) newSurfaceLocked(width, height int) (*surface, error) {
	s := &surface{owner: b, width: width, height: height}
	buf, _, err := b.pool.Acquire(s.byteSize())
	if err != nil {
		return nil, err
	}
	s.buf = buf
	b.live[s] = struct{}{}
	return s, nil
}

// dropLocked returns the surface buffer to the pool and forgets it.
func (b *Backend) dropLocked(s *surface) {
	b.pool.Release(s.buf)
	s.buf = nil
	delete(b.live, s)
}

// mapLocked runs an image-to-image kernel from src into a new dw×dh surface.
// extra, when set, is bound between the source and destination. On success
// src is consumed; on failure it is left untouched.
func (b *Backend) mapLocked(k *computeKernel, src *surface, dw, dh int, params []byte, extra *bufferBinding) (backend.Surface, error) {
	dst, err := b.newSurfaceLocked(dw, dh)
	if err != nil {
		return nil, err
	}

	bindings := make([]bufferBinding, 0, 3)
	if extra != nil {
		bindings = append(bindings, *extra)
	}
	bindings = append(bindings,
		bufferBinding{buf: src.buf, size: src.byteSize()},
		bufferBinding{buf: dst.buf, size: dst.byteSize()},
	)

	if err := b.dispatchLocked(k, params, bindings, groups(dw, 8), groups(dh, 8), nil); err != nil {
		b.dropLocked(dst)
		return nil, err
	}

	b.dropLocked(src)
	return dst, nil
}

// dispatchLocked binds params and bindings, records one compute pass plus
// any follow-up copies, and waits for completion.
func (b *Backend) dispatchLocked(
	k *computeKernel, params []byte, bindings []bufferBinding,
	gx, gy uint32, after func(hal.CommandEncoder),
) error {
	device := b.dev.device
	paramSize := uint64(len(params))

	ub, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: k.label + "_params", Size: paramSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create %s uniform buffer: %w", k.label, err)
	}
	defer device.DestroyBuffer(ub)
	b.dev.queue.WriteBuffer(ub, 0, params)

	entries := make([]gputypes.BindGroupEntry, 0, len(bindings)+1)
	entries = append(entries, gputypes.BindGroupEntry{
		Binding: 0, Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: paramSize},
	})
	for i, bb := range bindings {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i + 1), //nolint:gosec // binding index is tiny
			Resource: gputypes.BufferBinding{Buffer: bb.buf.NativeHandle(), Offset: 0, Size: bb.size},
		})
	}
	bg, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: k.label + "_bind", Layout: k.bindLayout, Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create %s bind group: %w", k.label, err)
	}
	defer device.DestroyBindGroup(bg)

	slogger().Debug("gpu: dispatch", "kernel", k.label, "groups_x", gx, "groups_y", gy)
	return b.submitLocked(k.label, func(enc hal.CommandEncoder) {
		pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: k.label + "_pass"})
		pass.SetPipeline(k.pipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(gx, gy, 1)
		pass.End()
		if after != nil {
			after(enc)
		}
	})
}

// submitLocked encodes one command buffer, submits it, and waits on a fence.
func (b *Backend) submitLocked(label string, record func(hal.CommandEncoder)) error {
	device, queue := b.dev.device, b.dev.queue

	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label + "_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	record(encoder)
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer device.FreeCommandBuffer(cmdBuf)

	fence, err := device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer device.DestroyFence(fence)

	if err := queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !fenceOK {
		return fmt.Errorf("wait for GPU: timed out after %v", fenceTimeout)
	}
	return nil
}
