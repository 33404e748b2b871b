// Package session implements the HID session: the pairing of one
// WebSocket connection with one opened HID device, its dedicated reader
// goroutine, and the bounded FIFO of captured input reports that
// goroutine feeds.
package session

import (
	"encoding/binary"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kndysfm/webhidbridge/internal/hiddev"
	"github.com/kndysfm/webhidbridge/internal/packet"
)

// readerPollInterval is the sleep between non-blocking poll attempts; it
// balances capture latency against CPU burn (spec.md §4.3).
const readerPollInterval = 1 * time.Millisecond

// maxCaptureFrame is the length-prefix header (4 bytes) plus the largest
// report hiddev will hand back.
const maxCaptureFrame = 4 + hiddev.MaxReportSize

// Session pairs one network connection with one opened HID device. The
// reader goroutine writes into fifo; the dispatcher (event-loop goroutine)
// reads from fifo and writes output/feature reports to handle. Both sides
// serialize through mu.
type Session struct {
	connID string
	handle hiddev.Handle
	filter byte
	fifo   *packet.FIFO
	logger *log.Logger

	mu                  sync.Mutex
	disconnectRequested atomic.Bool
	readerDone          chan struct{}
}

// ConnID satisfies registry.Session.
func (s *Session) ConnID() string { return s.connID }

// FIFO exposes the session's captured-report queue to the frame pump.
func (s *Session) FIFO() *packet.FIFO { return s.fifo }

// Lock/Unlock expose the session mutex so the dispatcher can serialize a
// device write with a FIFO drain under a single critical section (spec.md
// §9's resolution of the nested-lock bug in the source).
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// Handle returns the session's opened HID device. Callers must hold the
// session lock while using it.
func (s *Session) Handle() hiddev.Handle { return s.handle }

// Create allocates a session, opens its FIFO, and spawns its reader
// goroutine. It never fails once handle is already open: the only
// sub-steps (record allocation, FIFO creation, goroutine spawn) are
// infallible in Go, unlike the C/pthread original this is grounded on.
func Create(connID string, handle hiddev.Handle, reportIDFilter byte, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	s := &Session{
		connID:     connID,
		handle:     handle,
		filter:     reportIDFilter,
		fifo:       packet.New(),
		logger:     logger,
		readerDone: make(chan struct{}),
	}
	go s.readerLoop()
	return s
}

// Destroy signals disconnect, releases the mutex, joins the reader
// goroutine, and closes the HID handle. Setting the flag under the mutex
// means it is never set while a reader iteration holds the device; the
// reader reads the flag with an atomic load at the top of each iteration,
// so it exits within one poll interval and the handle is closed only
// after it has stopped.
func Destroy(s *Session) {
	s.mu.Lock()
	s.disconnectRequested.Store(true)
	s.mu.Unlock()

	<-s.readerDone

	if err := s.handle.Close(); err != nil && err != hiddev.ErrDeviceClosed {
		s.logger.Printf("session %s: close device: %v", s.connID, err)
	}
}

func (s *Session) readerLoop() {
	defer close(s.readerDone)

	buf := make([]byte, maxCaptureFrame)
	for {
		if s.disconnectRequested.Load() {
			return
		}

		if s.mu.TryLock() {
			s.captureOnce(buf)
			s.mu.Unlock()
		}

		time.Sleep(readerPollInterval)
	}
}

// captureOnce performs one non-blocking HID read and, on a report passing
// the id filter, pushes a length-prefixed copy onto the FIFO. The caller
// must hold s.mu.
func (s *Session) captureOnce(buf []byte) {
	n, err := s.handle.ReadTimeout(buf[4:], 0)
	if err != nil {
		if err != hiddev.ErrDeviceClosed {
			s.logger.Printf("session %s: read: %v", s.connID, err)
		}
		return
	}
	if n <= 0 {
		return
	}
	if s.filter != 0 && buf[4] != s.filter {
		return
	}

	binary.LittleEndian.PutUint32(buf[0:4], uint32(n))
	s.fifo.Push(buf[0 : 4+n])
}
