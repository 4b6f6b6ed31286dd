//go:build linux

package filemon

import "testing"

func TestCStringStopsAtNulByte(t *testing.T) {
	b := []byte{'f', 'i', 'l', 'e', 0, 0, 0, 0}
	if got := cString(b); got != "file" {
		t.Errorf("cString = %q, want %q", got, "file")
	}
}

func TestCStringWithNoTrailingNul(t *testing.T) {
	b := []byte{'a', 'b', 'c'}
	if got := cString(b); got != "abc" {
		t.Errorf("cString = %q, want %q", got, "abc")
	}
}
