//go:build nogpu

package gpu

import "github.com/gogpu/darkroom/internal/backend"

// Device is unavailable in nogpu builds.
type Device struct{}

// Open always fails in nogpu builds.
func Open() (*Device, error) { return nil, ErrUnavailable }

// OpenShared always fails in nogpu builds.
func OpenShared(any) (*Device, error) { return nil, ErrUnavailable }

// Name returns an empty string.
func (*Device) Name() string { return "" }

// Close does nothing.
func (*Device) Close() {}

// Backend is unavailable in nogpu builds.
type Backend struct{ backend.CPU }

// New always fails in nogpu builds.
func New(*Device, int) (*Backend, error) { return nil, ErrUnavailable }

// Close does nothing.
func (*Backend) Close() {}

// Trim does nothing.
func (*Backend) Trim() {}

// Kind reports KindGPU so the type still satisfies the interface contract.
func (*Backend) Kind() backend.Kind { return backend.KindGPU }
