package jsdrv

import (
	"fmt"
	"os"
	"sync"

	"github.com/sbinet/npyio"
)

// NpyCapture accumulates a float32 stream and writes it as a NumPy .npy
// file when closed, for offline analysis. The .npy header needs the final
// array shape, so samples are held in memory until Close.
type NpyCapture struct {
	mu     sync.Mutex
	path   string
	values []float32
	closed bool
}

// NewNpyCapture creates a capture that will write to path on Close.
func NewNpyCapture(path string) *NpyCapture {
	return &NpyCapture{path: path}
}

// Append adds samples to the capture.
func (c *NpyCapture) Append(data []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("npy capture %s is closed", c.path)
	}
	c.values = append(c.values, data...)
	return nil
}

// Len returns the number of samples captured so far.
func (c *NpyCapture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// Close writes the captured samples to the .npy file. Further Appends fail.
func (c *NpyCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	f, err := os.Create(c.path)
	if err != nil {
		return err
	}
	if err := npyio.Write(f, c.values); err != nil {
		f.Close()
		return fmt.Errorf("could not write %s: %w", c.path, err)
	}
	return f.Close()
}
