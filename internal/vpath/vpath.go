// Package vpath encodes and parses the canonical virtual HID path:
//
//	/hid/IIII/VVVV/PPPP/UUUU/uuuu/
//
// five 16-bit descriptor fields (interface number, vendor id, product id,
// usage page, usage), each rendered as 4 lowercase hex digits. The prefix
// through the trailing slash is exactly 30 characters; everything after it
// is a sub-resource selector the caller parses separately.
package vpath

import (
	"fmt"
	"strings"
)

// PrefixLen is the literal length of "/hid/IIII/VVVV/PPPP/UUUU/uuuu/".
const PrefixLen = 30

// Path identifies one HID device/interface.
type Path struct {
	InterfaceNbr uint16
	VendorID     uint16
	ProductID    uint16
	UsagePage    uint16
	Usage        uint16
}

// String renders the canonical, lowercase, 30-character virtual path
// prefix (including the trailing slash).
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("/hid/")
	b.WriteString(stdHex.encodeUint16(p.InterfaceNbr))
	b.WriteByte('/')
	b.WriteString(stdHex.encodeUint16(p.VendorID))
	b.WriteByte('/')
	b.WriteString(stdHex.encodeUint16(p.ProductID))
	b.WriteByte('/')
	b.WriteString(stdHex.encodeUint16(p.UsagePage))
	b.WriteByte('/')
	b.WriteString(stdHex.encodeUint16(p.Usage))
	b.WriteByte('/')
	return b.String()
}

// Parse splits uri into its Path prefix and the trailing selector, e.g.
// Parse("/hid/0000/1234/5678/0001/0002/feature/03") returns the Path for
// that device plus the suffix "feature/03". It returns ok == false if uri
// does not begin with a well-formed virtual path prefix.
func Parse(uri string) (p Path, suffix string, ok bool) {
	if len(uri) < PrefixLen || !strings.HasPrefix(uri, "/hid/") {
		return Path{}, "", false
	}
	prefix := uri[:PrefixLen]
	fields := strings.Split(strings.Trim(prefix, "/"), "/")
	if len(fields) != 6 || fields[0] != "hid" {
		return Path{}, "", false
	}

	values := make([]uint16, 5)
	for i, f := range fields[1:] {
		v, err := stdHex.decodeUint16(f)
		if err != nil {
			return Path{}, "", false
		}
		values[i] = v
	}

	p = Path{
		InterfaceNbr: values[0],
		VendorID:     values[1],
		ProductID:    values[2],
		UsagePage:    values[3],
		Usage:        values[4],
	}

	return p, uri[PrefixLen:], true
}

// Sprint is a convenience for formatting errors that reference a path.
func Sprint(p Path) string {
	return fmt.Sprintf("interface=%d vendor=%#04x product=%#04x usagePage=%#04x usage=%#04x",
		p.InterfaceNbr, p.VendorID, p.ProductID, p.UsagePage, p.Usage)
}
