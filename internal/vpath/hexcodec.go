package vpath

import "fmt"

// hexEncoding is a fixed 16-character nibble alphabet, generalized from the
// teacher's modhex codec (mhex.Encoding) to the plain lowercase hex alphabet
// the virtual HID path format requires. Unlike modhex, decode here accepts
// either case so a handshake URI typed or generated with uppercase hex still
// resolves; encode always emits lowercase, matching spec.md's literal
// grammar.
type hexEncoding []byte

func newHexEncoding(alphabet string) hexEncoding {
	enc := []byte(alphabet)
	if len(enc) != 16 {
		panic("hex alphabet length must be 16")
	}
	return enc
}

var stdHex = newHexEncoding("0123456789abcdef")

func (enc hexEncoding) index(c byte) (int, error) {
	switch {
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, nil
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, nil
	case c >= '0' && c <= '9':
		return int(c - '0'), nil
	}
	return -1, fmt.Errorf("vpath: invalid hex digit %q", c)
}

// encodeUint16 renders v as exactly 4 lowercase hex digits.
func (enc hexEncoding) encodeUint16(v uint16) string {
	out := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		out[i] = enc[v&0xF]
		v >>= 4
	}
	return string(out)
}

// decodeUint16 parses exactly 4 hex digits, either case.
func (enc hexEncoding) decodeUint16(s string) (uint16, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("vpath: field %q must be exactly 4 hex digits", s)
	}
	var v uint16
	for i := 0; i < 4; i++ {
		n, err := enc.index(s[i])
		if err != nil {
			return 0, err
		}
		v = v<<4 | uint16(n)
	}
	return v, nil
}
