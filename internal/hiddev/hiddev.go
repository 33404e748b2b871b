// Package hiddev is the HID transport the bridge core talks to: device
// enumeration and opened-handle report I/O (feature/input/output reports).
// It deliberately stops at raw report transfer — report-descriptor
// semantic parsing beyond the top-level usage/usage-page pair needed for
// the virtual path is out of scope (spec Non-goals).
package hiddev

import "errors"

// MaxReportSize is the largest report (feature, input, or output) this
// package will move in one transfer.
const MaxReportSize = 256

// ErrUnsupportedPlatform is returned by Device.Open on a build this
// package has no transport for (Enumerate there returns no devices and no
// error).
var ErrUnsupportedPlatform = errors.New("hiddev: unsupported platform")

// ErrDeviceClosed is returned for operations attempted on a Handle whose
// Close has already run.
var ErrDeviceClosed = errors.New("hiddev: device closed")

// Device describes one HID interface as discovered by Enumerate: the
// descriptor fields the virtual path is built from, plus the
// human-readable strings the enumerate endpoint reports.
type Device struct {
	Path         string // platform-specific device node path
	InterfaceNbr int    // USB interface number
	VendorID     uint16
	ProductID    uint16
	UsagePage    uint16
	Usage        uint16
	ReleaseNbr   uint16
	SerialNbr    string
	MfrStr       string
	ProductStr   string
}

// Handle is an exclusively-owned open HID device. Implementations must be
// safe for the caller's own external synchronization (the session holds a
// mutex around every call) but need not be internally reentrant.
type Handle interface {
	// Close releases the device handle. Idempotent: calling Close twice
	// returns ErrDeviceClosed on the second call rather than panicking.
	Close() error

	// ReadTimeout reads one input report into b, waiting up to timeoutMs
	// milliseconds for data (0 means non-blocking: return immediately with
	// 0 if nothing is pending). It returns the number of bytes read.
	ReadTimeout(b []byte, timeoutMs int) (int, error)

	// Write sends b as a single output report. b[0] is the report id (0
	// for unnumbered reports).
	Write(b []byte) (int, error)

	// GetFeatureReport fetches the feature report identified by reportID
	// and returns its payload, report id included as the first byte.
	GetFeatureReport(reportID byte) ([]byte, error)

	// SendFeatureReport sends data as a feature report. data[0] is the
	// report id.
	SendFeatureReport(data []byte) error
}
