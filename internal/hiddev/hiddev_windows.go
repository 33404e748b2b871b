//go:build windows

package hiddev

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// hidHandle implements Handle over the Windows hid.dll HidD_* API,
// generalized from the teacher's fixed 8-byte OTP feature-report
// transport to the spec's variable-length (<=256 byte) reports. Reads and
// writes go through overlapped I/O so ReadTimeout can honor a bounded
// wait without blocking the caller past timeoutMs.
type hidHandle struct {
	mu      sync.Mutex
	h       windows.Handle
	closed  bool
	featLen uint32
	inLen   uint32
	outLen  uint32
}

func (d Device) Open() (Handle, error) {
	pathPtr, err := windows.UTF16PtrFromString(d.Path)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFile(
		pathPtr,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_OVERLAPPED,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("hiddev: open %s: %w", d.Path, err)
	}

	caps, err := queryCaps(h)
	if err != nil {
		_ = windows.CloseHandle(h)
		return nil, err
	}
	return &hidHandle{
		h:       h,
		featLen: uint32(caps.FeatureReportByteLength),
		inLen:   uint32(caps.InputReportByteLength),
		outLen:  uint32(caps.OutputReportByteLength),
	}, nil
}

func (h *hidHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrDeviceClosed
	}
	h.closed = true
	return windows.CloseHandle(h.h)
}

// ReadTimeout issues an overlapped ReadFile and waits up to timeoutMs for
// completion; timeoutMs == 0 polls once and returns (0, nil) on a miss,
// matching the reader task's non-blocking contract.
func (h *hidHandle) ReadTimeout(b []byte, timeoutMs int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrDeviceClosed
	}

	event, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return 0, err
	}
	defer windows.CloseHandle(event)

	var ov windows.Overlapped
	ov.HEvent = event

	var done uint32
	err = windows.ReadFile(h.h, b, &done, &ov)
	if err != nil && !errors.Is(err, windows.ERROR_IO_PENDING) {
		return 0, err
	}

	wait := uint32(timeoutMs)
	if timeoutMs == 0 {
		wait = 0
	}
	ev, err := windows.WaitForSingleObject(event, wait)
	if err != nil {
		return 0, err
	}
	if ev == uint32(windows.WAIT_TIMEOUT) {
		windows.CancelIo(h.h)
		return 0, nil
	}

	if err := windows.GetOverlappedResult(h.h, &ov, &done, true); err != nil {
		return 0, err
	}
	return int(done), nil
}

func (h *hidHandle) Write(b []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrDeviceClosed
	}

	event, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return 0, err
	}
	defer windows.CloseHandle(event)

	var ov windows.Overlapped
	ov.HEvent = event

	var done uint32
	err = windows.WriteFile(h.h, b, &done, &ov)
	if err != nil && !errors.Is(err, windows.ERROR_IO_PENDING) {
		return 0, err
	}
	if err := windows.GetOverlappedResult(h.h, &ov, &done, true); err != nil {
		return 0, err
	}
	return int(done), nil
}

func (h *hidHandle) GetFeatureReport(reportID byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrDeviceClosed
	}

	size := h.featLen
	if size < 1+MaxReportSize {
		size = 1 + MaxReportSize
	}
	buf := make([]byte, size)
	buf[0] = reportID

	if err := hidDGetFeature(h.h, buf); err != nil {
		return nil, fmt.Errorf("hiddev: get feature report: %w", err)
	}
	return buf, nil
}

func (h *hidHandle) SendFeatureReport(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrDeviceClosed
	}
	if len(data) == 0 || len(data) > 1+MaxReportSize {
		return fmt.Errorf("hiddev: feature report length %d out of range", len(data))
	}
	if err := hidDSetFeature(h.h, data); err != nil {
		return fmt.Errorf("hiddev: send feature report: %w", err)
	}
	return nil
}

// --- hid.dll / setupapi interop, generalized from the teacher's
// hid_windows.go (which targeted only the fixed-size YubiKey OTP feature
// report) to arbitrary report lengths. ---

var (
	modHid                   = windows.NewLazySystemDLL("hid.dll")
	procHidDGetFeature       = modHid.NewProc("HidD_GetFeature")
	procHidDSetFeature       = modHid.NewProc("HidD_SetFeature")
	procHidDGetPreparsedData = modHid.NewProc("HidD_GetPreparsedData")
	procHidDFreePreparsed    = modHid.NewProc("HidD_FreePreparsedData")
	procHidPGetCaps          = modHid.NewProc("HidP_GetCaps")
	procHidDGetAttributes    = modHid.NewProc("HidD_GetAttributes")
	procHidDGetManufacturer  = modHid.NewProc("HidD_GetManufacturerString")
	procHidDGetProduct       = modHid.NewProc("HidD_GetProductString")
	procHidDGetSerialNumber  = modHid.NewProc("HidD_GetSerialNumberString")
	procHidDGetHidGuid       = modHid.NewProc("HidD_GetHidGuid")

	modSetupAPI                     = windows.NewLazySystemDLL("setupapi.dll")
	procSetupDiGetClassDevsW        = modSetupAPI.NewProc("SetupDiGetClassDevsW")
	procSetupDiEnumDeviceInterfaces = modSetupAPI.NewProc("SetupDiEnumDeviceInterfaces")
	procSetupDiGetDeviceInterfaceDW = modSetupAPI.NewProc("SetupDiGetDeviceInterfaceDetailW")
)

type hidCaps struct {
	Usage                     uint16
	UsagePage                 uint16
	InputReportByteLength     uint16
	OutputReportByteLength    uint16
	FeatureReportByteLength   uint16
	Reserved                  [17]uint16
	NumberLinkCollectionNodes uint16
	NumberInputButtonCaps     uint16
	NumberInputValueCaps      uint16
	NumberInputDataIndices    uint16
	NumberOutputButtonCaps    uint16
	NumberOutputValueCaps     uint16
	NumberOutputDataIndices   uint16
	NumberFeatureButtonCaps   uint16
	NumberFeatureValueCaps    uint16
	NumberFeatureDataIndices  uint16
}

type hidAttributes struct {
	Size          uint32
	VendorID      uint16
	ProductID     uint16
	VersionNumber uint16
}

func hidDGetFeature(h windows.Handle, buf []byte) error {
	r1, _, err := procHidDGetFeature.Call(uintptr(h), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if r1 == 0 {
		return err
	}
	return nil
}

func hidDSetFeature(h windows.Handle, buf []byte) error {
	r1, _, err := procHidDSetFeature.Call(uintptr(h), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if r1 == 0 {
		return err
	}
	return nil
}

func queryCaps(h windows.Handle) (hidCaps, error) {
	var ppd uintptr
	r1, _, err := procHidDGetPreparsedData.Call(uintptr(h), uintptr(unsafe.Pointer(&ppd)))
	if r1 == 0 {
		return hidCaps{}, err
	}
	defer procHidDFreePreparsed.Call(ppd)

	var caps hidCaps
	r1, _, err = procHidPGetCaps.Call(ppd, uintptr(unsafe.Pointer(&caps)))
	if r1 != 0x00110000 { // HIDP_STATUS_SUCCESS
		return hidCaps{}, err
	}
	return caps, nil
}

func queryAttributes(h windows.Handle) (hidAttributes, error) {
	var attrs hidAttributes
	attrs.Size = uint32(unsafe.Sizeof(attrs))
	r1, _, err := procHidDGetAttributes.Call(uintptr(h), uintptr(unsafe.Pointer(&attrs)))
	if r1 == 0 {
		return hidAttributes{}, err
	}
	return attrs, nil
}

func queryString(proc *windows.LazyProc, h windows.Handle) string {
	buf := make([]uint16, 256)
	r1, _, _ := proc.Call(uintptr(h), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)*2))
	if r1 == 0 {
		return ""
	}
	return strings.TrimRight(windows.UTF16ToString(buf), "\x00")
}

// Enumerate opens the HID device interface class via SetupAPI and, for
// each interface path enumInterfacePath yields, fills in the descriptor
// fields the virtual path needs. vendorID/productID of 0 match any device.
// enumInterfacePath currently yields no paths, so the result is always an
// empty list.
func Enumerate(vendorID, productID uint16) ([]Device, error) {
	guid, err := getHidGuid()
	if err != nil {
		return nil, err
	}
	infoSet, _, _ := procSetupDiGetClassDevsW.Call(
		uintptr(unsafe.Pointer(guid)), 0, 0,
		uintptr(windows.DIGCF_PRESENT|windows.DIGCF_DEVICEINTERFACE),
	)
	if infoSet == uintptr(windows.InvalidHandle) {
		return nil, errors.New("hiddev: SetupDiGetClassDevsW failed")
	}

	var out []Device
	for idx := uint32(0); ; idx++ {
		path, ok := enumInterfacePath(infoSet, guid, idx)
		if !ok {
			break
		}

		pathPtr, err := windows.UTF16PtrFromString(path)
		if err != nil {
			continue
		}
		h, err := windows.CreateFile(pathPtr, 0, windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE, nil, windows.OPEN_EXISTING, 0, 0)
		if err != nil {
			continue
		}

		attrs, err := queryAttributes(h)
		if err != nil {
			windows.CloseHandle(h)
			continue
		}
		if (vendorID != 0 && attrs.VendorID != vendorID) || (productID != 0 && attrs.ProductID != productID) {
			windows.CloseHandle(h)
			continue
		}

		d := Device{
			Path:         path,
			InterfaceNbr: int(idx),
			VendorID:     attrs.VendorID,
			ProductID:    attrs.ProductID,
			ReleaseNbr:   attrs.VersionNumber,
			MfrStr:       queryString(procHidDGetManufacturer, h),
			ProductStr:   queryString(procHidDGetProduct, h),
			SerialNbr:    queryString(procHidDGetSerialNumber, h),
		}
		if caps, err := queryCaps(h); err == nil {
			d.UsagePage = caps.UsagePage
			d.Usage = caps.Usage
		}
		windows.CloseHandle(h)
		out = append(out, d)
	}
	return out, nil
}

func getHidGuid() (*windows.GUID, error) {
	var g windows.GUID
	procHidDGetHidGuid.Call(uintptr(unsafe.Pointer(&g)))
	return &g, nil
}

// enumInterfacePath always reports no interface at idx. It does not call
// SetupDiEnumDeviceInterfaces or SetupDiGetDeviceInterfaceDetailW, so no
// device path is decoded on Windows (see DESIGN.md).
func enumInterfacePath(infoSet uintptr, guid *windows.GUID, idx uint32) (string, bool) {
	return "", false
}
