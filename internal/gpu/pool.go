// Package gpu hands out GPU device ids to the steps that need one.
package gpu

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var ErrNoDevices = errors.New("gpu list is empty")

type ctxKey struct{}

// Pool is a fixed set of devices. A device is held by at most one step at a time.
type Pool struct {
	devices []string
	free    chan string
}

// ParseList splits a GPU list such as "0 1" or "0,1".
func ParseList(list string) []string {
	return strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

// NewPool creates a pool from a GPU list.
func NewPool(list string) (*Pool, error) {
	devices := ParseList(list)
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	free := make(chan string, len(devices))
	for _, d := range devices {
		free <- d
	}

	return &Pool{devices: devices, free: free}, nil
}

// Size returns the number of devices.
func (p *Pool) Size() int {
	return len(p.devices)
}

// Devices returns the device ids.
func (p *Pool) Devices() []string {
	res := make([]string, len(p.devices))
	copy(res, p.devices)

	return res
}

// Acquire blocks until a device is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "unable to acquire gpu")
	case d := <-p.free:
		return d, nil
	}
}

// Release gives device back to the pool.
func (p *Pool) Release(device string) {
	p.free <- device
}

// WithDevice stores device in ctx.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, ctxKey{}, device)
}

// DeviceFromContext returns the device held by the running step.
func DeviceFromContext(ctx context.Context) (string, bool) {
	d, ok := ctx.Value(ctxKey{}).(string)

	return d, ok
}
