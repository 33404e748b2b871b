//go:build !linux && !windows

package hiddev

// Enumerate reports no devices on platforms this package has no hidraw or
// hid.dll-equivalent transport for, mirroring the teacher's pattern of
// only shipping Linux and Windows HID backends.
func Enumerate(vendorID, productID uint16) ([]Device, error) {
	return nil, nil
}

// Open always fails on unsupported platforms.
func (d Device) Open() (Handle, error) {
	return nil, ErrUnsupportedPlatform
}
