package darkroom

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/looplab/fsm"
	"golang.org/x/sys/cpu"

	"github.com/gogpu/darkroom/internal/backend"
	"github.com/gogpu/darkroom/internal/gpu"
)

// Service lifecycle states.
const (
	StateUnprobed    = "unprobed"
	StateReady       = "ready"
	StateUnavailable = "unavailable"
	StateDisabled    = "disabled"
	StateLost        = "lost"
)

const (
	eventProbeOK   = "probe_ok"
	eventProbeFail = "probe_fail"
	eventTrip      = "trip"
	eventTeardown  = "teardown"
	eventReinit    = "reinit"
)

// Capabilities describes the compute environment found by Detect.
type Capabilities struct {
	// Available reports whether a GPU compute device was opened.
	Available bool

	// Reason explains why the GPU is unavailable. Empty when Available.
	Reason string

	// Adapter is the name of the GPU adapter in use.
	Adapter string

	// CPU describes the fallback backend.
	CPU CPUInfo
}

// CPUInfo describes the host CPU used by the fallback backend.
type CPUInfo struct {
	Arch    string
	Workers int
	SIMD    []string
}

func detectCPU() CPUInfo {
	info := CPUInfo{Arch: runtime.GOARCH, Workers: runtime.GOMAXPROCS(0)}
	add := func(ok bool, name string) {
		if ok {
			info.SIMD = append(info.SIMD, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE41, "sse4.1")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "asimd")
		add(cpu.ARM64.HasSVE, "sve")
	}
	return info
}

// gpuSession is an opened GPU backend and its teardown. trim frees idle
// device memory and may be nil.
type gpuSession struct {
	backend backend.ComputeBackend
	adapter string
	trim    func()
	close   func()
}

type probeFunc func() (*gpuSession, error)

func openGPU(o *serviceOptions) (*gpuSession, error) {
	var (
		dev *gpu.Device
		err error
	)
	if o.provider != nil {
		dev, err = gpu.OpenShared(o.provider)
	} else {
		dev, err = gpu.Open()
	}
	if err != nil {
		return nil, err
	}
	b, err := gpu.New(dev, o.budgetMB)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return &gpuSession{
		backend: b,
		adapter: dev.Name(),
		trim:    b.Trim,
		close: func() {
			b.Close()
			dev.Close()
		},
	}, nil
}

// Service owns the GPU device and decides whether renders may use it.
// Create one per process with NewService and pass it to every Pipeline.
//
// The device is opened lazily on the first Detect or ShouldUseGPU call.
// Teardown releases it after a context loss; the next use probes again.
// Consecutive failures reported through RecordFailure trip a breaker that
// keeps the GPU disabled for the rest of the service's life, across
// teardowns.
//
// A Service is safe for concurrent use.
type Service struct {
	mu       sync.Mutex
	opts     serviceOptions
	state    *fsm.FSM
	caps     Capabilities
	session  *gpuSession
	failures int
	tripped  bool
}

// NewService creates a service. No device is opened until first use.
func NewService(opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.probe == nil {
		o.probe = func() (*gpuSession, error) { return openGPU(&o) }
	}
	s := &Service{opts: o}
	s.state = fsm.NewFSM(
		StateUnprobed,
		fsm.Events{
			{Name: eventProbeOK, Src: []string{StateUnprobed}, Dst: StateReady},
			{Name: eventProbeFail, Src: []string{StateUnprobed}, Dst: StateUnavailable},
			{Name: eventTrip, Src: []string{StateReady}, Dst: StateDisabled},
			{Name: eventTeardown, Src: []string{StateReady, StateUnavailable, StateDisabled}, Dst: StateLost},
			{Name: eventReinit, Src: []string{StateLost}, Dst: StateUnprobed},
		},
		fsm.Callbacks{
			"after_event": func(e *fsm.Event) {
				if e.Src != e.Dst {
					Logger().Info("darkroom: service state", "from", e.Src, "to", e.Dst, "event", e.Event)
				}
			},
		},
	)
	return s
}

// State returns the lifecycle state, one of the State* constants.
func (s *Service) State() string {
	return s.state.Current()
}

func (s *Service) event(name string) {
	err := s.state.Event(name)
	if _, ok := err.(fsm.NoTransitionError); err != nil && !ok {
		Logger().Warn("darkroom: service transition", "event", name, "state", s.state.Current(), "err", err)
	}
}

// Detect probes for a GPU compute device and returns what it found. The
// result is cached until Teardown. Detect never fails: probe errors,
// panics and ctx cancellation all yield Available=false. A cancelled probe
// is retried on the next call.
func (s *Service) Detect(ctx context.Context) Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detectLocked(ctx)
}

func (s *Service) detectLocked(ctx context.Context) Capabilities {
	switch s.state.Current() {
	case StateLost:
		s.event(eventReinit)
	case StateUnprobed:
	default:
		return s.caps
	}

	cpuInfo := detectCPU()
	if s.opts.forceCPU {
		s.caps = Capabilities{Reason: "GPU disabled by configuration", CPU: cpuInfo}
		s.event(eventProbeFail)
		return s.caps
	}

	type result struct {
		sess *gpuSession
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("probe panicked: %v", r)}
			}
		}()
		sess, err := s.opts.probe()
		done <- result{sess, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			Logger().Info("darkroom: GPU unavailable", "err", r.err)
			s.caps = Capabilities{Reason: r.err.Error(), CPU: cpuInfo}
			s.event(eventProbeFail)
			return s.caps
		}
		s.session = r.sess
		s.caps = Capabilities{Available: true, Adapter: r.sess.adapter, CPU: cpuInfo}
		s.event(eventProbeOK)
		Logger().Info("darkroom: GPU ready", "adapter", r.sess.adapter)
		if s.tripped {
			s.disableLocked()
		}
		return s.caps
	case <-ctx.Done():
		go func() {
			if r := <-done; r.sess != nil {
				r.sess.close()
			}
		}()
		return Capabilities{Reason: "probe cancelled: " + ctx.Err().Error(), CPU: cpuInfo}
	}
}

// ShouldUseGPU reports whether renders should use the GPU: a device is
// available and the breaker has not tripped. The first call probes.
func (s *Service) ShouldUseGPU() bool {
	return s.acquire() != nil
}

// acquire returns the GPU backend, or nil when renders must use the CPU.
func (s *Service) acquire() backend.ComputeBackend {
	s.mu.Lock()
	defer s.mu.Unlock()
	caps := s.detectLocked(context.Background())
	if !caps.Available || s.tripped || s.session == nil {
		return nil
	}
	return s.session.backend
}

// RecordFailure counts a failed GPU segment. Reaching the failure threshold
// disables the GPU permanently.
func (s *Service) RecordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	Logger().Warn("darkroom: GPU failure", "consecutive", s.failures, "threshold", s.opts.failureThreshold, "err", err)
	if s.failures >= s.opts.failureThreshold && !s.tripped {
		s.tripped = true
		Logger().Warn("darkroom: GPU disabled after repeated failures", "failures", s.failures)
		s.disableLocked()
	}
}

// RecordSuccess resets the consecutive failure count.
func (s *Service) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
}

// disableLocked moves a ready service to disabled and releases its device.
func (s *Service) disableLocked() {
	if s.state.Is(StateReady) {
		s.event(eventTrip)
	}
	s.releaseLocked()
}

// ReleaseIdle frees pooled GPU buffers that no render holds. The device
// stays open and later renders allocate again on demand. Hosts call it when
// they go idle or come under memory pressure.
func (s *Service) ReleaseIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.trim == nil {
		return
	}
	s.session.trim()
	Logger().Debug("darkroom: released idle GPU memory")
}

// Teardown releases the GPU device, for example after a device loss. The
// next Detect or ShouldUseGPU probes again. The breaker state is kept.
func (s *Service) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	if !s.state.Is(StateUnprobed) && !s.state.Is(StateLost) {
		s.event(eventTeardown)
	}
}

func (s *Service) releaseLocked() {
	if s.session != nil {
		s.session.close()
		s.session = nil
	}
}
