//go:build windows

package telemetry

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// SharedMemoryReader reads the simulator region through the Windows
// named file mapping. Each Read opens the mapping, copies the region and
// releases every handle before returning, on all exit paths.
type SharedMemoryReader struct {
	name *uint16
}

// NewSharedMemoryReader prepares a reader for the simulator's shared
// data region.
func NewSharedMemoryReader() (*SharedMemoryReader, error) {
	name, err := windows.UTF16PtrFromString(mappingName)
	if err != nil {
		return nil, fmt.Errorf("encode mapping name: %w", err)
	}
	return &SharedMemoryReader{name: name}, nil
}

// Read implements Reader.
func (r *SharedMemoryReader) Read(ctx context.Context, drivers []string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	handle, err := windows.OpenFileMapping(windows.FILE_MAP_READ, false, r.name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer windows.CloseHandle(handle)

	size := unsafe.Sizeof(sharedData{})
	view, err := windows.MapViewOfFile(handle, windows.FILE_MAP_READ, 0, 0, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer windows.UnmapViewOfFile(view)

	// Copy the region out of the view so the snapshot survives release
	// of the mapping.
	data := *(*sharedData)(unsafe.Pointer(view))

	return snapshotFrom(&data, drivers)
}

// Close implements Reader. The reader holds no persistent handles.
func (r *SharedMemoryReader) Close() error { return nil }
