//go:build linux

package hiddev

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// hidrawHandle implements Handle over a Linux /dev/hidrawN node using the
// HIDIOCGFEATURE/HIDIOCSFEATURE ioctls for feature reports and plain
// read(2)/write(2) for input/output reports, generalized from the
// teacher's fixed 8-byte OTP feature-report transport to the spec's
// variable-length (<=256 byte) reports.
type hidrawHandle struct {
	mu     sync.Mutex
	f      *os.File
	fd     int
	closed bool
}

// Open opens the hidraw node for d.
func (d Device) Open() (Handle, error) {
	f, err := os.OpenFile(d.Path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("hiddev: open %s: %w", d.Path, err)
	}
	return &hidrawHandle{f: f, fd: int(f.Fd())}, nil
}

func (h *hidrawHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrDeviceClosed
	}
	h.closed = true
	return h.f.Close()
}

// ReadTimeout polls the fd for up to timeoutMs before reading one input
// report. timeoutMs == 0 means non-blocking: poll returns immediately and
// a miss yields (0, nil), not an error, matching the reader task's
// cooperative, never-block contract (spec.md §4.3).
func (h *hidrawHandle) ReadTimeout(b []byte, timeoutMs int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrDeviceClosed
	}

	pfd := []unix.PollFd{{Fd: int32(h.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("hiddev: poll: %w", err)
	}
	if n == 0 || pfd[0].Revents&unix.POLLIN == 0 {
		return 0, nil
	}

	return h.f.Read(b)
}

func (h *hidrawHandle) Write(b []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrDeviceClosed
	}
	return h.f.Write(b)
}

func (h *hidrawHandle) GetFeatureReport(reportID byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrDeviceClosed
	}

	buf := make([]byte, 1+MaxReportSize)
	buf[0] = reportID

	req := hidIOC(_IOC_READ|_IOC_WRITE, 'H', 0x07, uintptr(len(buf))) // HIDIOCGFEATURE(len)
	n, err := h.ioctl(req, buf)
	if err != nil {
		return nil, fmt.Errorf("hiddev: get feature report: %w", err)
	}
	if n < 0 || n > len(buf) {
		n = len(buf)
	}
	return buf[:n], nil
}

func (h *hidrawHandle) SendFeatureReport(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrDeviceClosed
	}
	if len(data) == 0 || len(data) > 1+MaxReportSize {
		return fmt.Errorf("hiddev: feature report length %d out of range", len(data))
	}

	req := hidIOC(_IOC_READ|_IOC_WRITE, 'H', 0x06, uintptr(len(data))) // HIDIOCSFEATURE(len)
	if _, err := h.ioctl(req, data); err != nil {
		return fmt.Errorf("hiddev: send feature report: %w", err)
	}
	return nil
}

// ioctl issues req against buf and returns the kernel's reported transfer
// length (the ioctl return value for HIDIOCGFEATURE/HIDIOCSFEATURE).
func (h *hidrawHandle) ioctl(req uintptr, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, fmt.Errorf("ioctl buffer must not be empty")
	}
	r1, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(h.fd), req, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return 0, errno
	}
	return int(r1), nil
}

// ---- Linux _IOC helpers (arch-independent) ----

const (
	_iocNrbits   = 8
	_iocTypebits = 8
	_iocSizebits = 14
	_iocDirbits  = 2

	_iocNrshift   = 0
	_iocTypeshift = _iocNrshift + _iocNrbits
	_iocSizeshift = _iocTypeshift + _iocTypebits
	_iocDirshift  = _iocSizeshift + _iocSizebits

	_IOC_NONE  = 0
	_IOC_WRITE = 1
	_IOC_READ  = 2
)

func _IOC(dir, typ, nr, size uintptr) uintptr {
	return (dir << _iocDirshift) | (typ << _iocTypeshift) | (nr << _iocNrshift) | (size << _iocSizeshift)
}

func hidIOC(dir uintptr, typ byte, nr byte, size uintptr) uintptr {
	return _IOC(dir, uintptr(typ), uintptr(nr), size)
}

// Enumerate walks /sys/class/hidraw, resolving each entry's USB interface
// and device directories to fill in the descriptor fields the virtual
// path needs. vendorID/productID of 0 match any device; 0/0 matches all.
func Enumerate(vendorID, productID uint16) ([]Device, error) {
	const sysHidraw = "/sys/class/hidraw"

	entries, err := os.ReadDir(sysHidraw)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("hiddev: read %s: %w", sysHidraw, err)
	}

	var out []Device
	for _, e := range entries {
		name := e.Name() // "hidrawX"
		sysPath := filepath.Join(sysHidraw, name)
		devPath := filepath.Join("/dev", name)

		devLink := filepath.Join(sysPath, "device")
		realDev, err := filepath.EvalSymlinks(devLink)
		if err != nil {
			continue
		}

		ifaceDir := findAncestorWith(realDev, "bInterfaceNumber")
		if ifaceDir == "" {
			// Not a USB HID (could be Bluetooth etc); skip.
			continue
		}
		devDir := findAncestorWith(ifaceDir, "idVendor")
		if devDir == "" {
			continue
		}

		var d Device
		d.Path = devPath
		d.InterfaceNbr = readHex8(filepath.Join(ifaceDir, "bInterfaceNumber"))
		d.VendorID = readHex16(filepath.Join(devDir, "idVendor"))
		d.ProductID = readHex16(filepath.Join(devDir, "idProduct"))
		d.ReleaseNbr = readHex16(filepath.Join(devDir, "bcdDevice"))
		d.SerialNbr = readString(filepath.Join(devDir, "serial"))
		d.MfrStr = readString(filepath.Join(devDir, "manufacturer"))
		d.ProductStr = readString(filepath.Join(devDir, "product"))

		if vendorID != 0 && d.VendorID != vendorID {
			continue
		}
		if productID != 0 && d.ProductID != productID {
			continue
		}

		for _, p := range []string{
			filepath.Join(sysPath, "device", "report_descriptor"),
			filepath.Join(sysPath, "report_descriptor"),
		} {
			if b, err := os.ReadFile(p); err == nil && len(b) > 0 {
				d.UsagePage, d.Usage = parseTopLevelUsage(b)
				break
			}
		}

		out = append(out, d)
	}
	return out, nil
}

// findAncestorWith walks up from dir looking for a directory containing a
// file named attr, returning "" if the filesystem root is reached first.
func findAncestorWith(dir, attr string) string {
	for {
		if _, err := os.Stat(filepath.Join(dir, attr)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func readString(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func readHex16(path string) uint16 {
	s := readString(path)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}

func readHex8(path string) int {
	s := readString(path)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return int(v)
}

// parseTopLevelUsage parses a HID report descriptor far enough to recover
// the Usage Page and Usage of its first top-level Collection. This is the
// one piece of report-descriptor parsing the spec keeps (it feeds the
// virtual path); full item parsing for application use is out of scope.
func parseTopLevelUsage(desc []byte) (uint16, uint16) {
	var usagePage, usage uint16
	i := 0
	for i < len(desc) {
		prefix := desc[i]
		i++

		if prefix == 0xFE { // long item
			if i+2 > len(desc) {
				break
			}
			size := int(desc[i])
			i += 2 + size
			continue
		}

		sizeCode := int(prefix & 0x03)
		size := [4]int{0, 1, 2, 4}[sizeCode]
		itemType := (prefix >> 2) & 0x03
		itemTag := (prefix >> 4) & 0x0F

		if i+size > len(desc) {
			break
		}
		var val uint32
		switch size {
		case 1:
			val = uint32(desc[i])
		case 2:
			val = uint32(desc[i]) | uint32(desc[i+1])<<8
		case 4:
			val = uint32(desc[i]) | uint32(desc[i+1])<<8 | uint32(desc[i+2])<<16 | uint32(desc[i+3])<<24
		}
		i += size

		switch itemType {
		case 1: // Global
			if itemTag == 0x0 {
				usagePage = uint16(val & 0xFFFF)
			}
		case 2: // Local
			if itemTag == 0x0 {
				usage = uint16(val & 0xFFFF)
			}
		case 0: // Main
			if itemTag == 0x0A { // Collection
				return usagePage, usage
			}
		}
	}
	return usagePage, usage
}
