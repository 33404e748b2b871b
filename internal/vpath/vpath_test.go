package vpath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringRoundTrip(t *testing.T) {
	p := Path{InterfaceNbr: 0, VendorID: 0x1234, ProductID: 0x5678, UsagePage: 0x0001, Usage: 0x0002}
	s := p.String()
	require.Len(t, s, PrefixLen)
	require.Equal(t, "/hid/0000/1234/5678/0001/0002/", s)

	got, suffix, ok := Parse(s + "feature/03")
	require.True(t, ok)
	require.Equal(t, p, got)
	require.Equal(t, "feature/03", suffix)
}

func TestParseCaseInsensitiveInput(t *testing.T) {
	got, _, ok := Parse("/hid/0000/ABCD/5678/0001/0002/input/")
	require.True(t, ok)
	require.Equal(t, uint16(0xABCD), got.VendorID)
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"/hid/",
		"/not-hid/0000/1234/5678/0001/0002/",
		"/hid/000/1234/5678/0001/0002/", // short field
		"/hid/zzzz/1234/5678/0001/0002/",
	}
	for _, c := range cases {
		_, _, ok := Parse(c)
		require.False(t, ok, "expected Parse(%q) to fail", c)
	}
}
