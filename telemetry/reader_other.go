//go:build !windows

package telemetry

import "context"

// SharedMemoryReader is a stub on platforms without the simulator's
// named shared-memory mapping. Every read reports the mapping as
// unavailable, which the tracker treats as "simulator not running".
type SharedMemoryReader struct{}

// NewSharedMemoryReader prepares a reader for the simulator's shared
// data region.
func NewSharedMemoryReader() (*SharedMemoryReader, error) {
	return &SharedMemoryReader{}, nil
}

// Read implements Reader.
func (r *SharedMemoryReader) Read(ctx context.Context, drivers []string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrUnavailable
}

// Close implements Reader.
func (r *SharedMemoryReader) Close() error { return nil }
