package util

import "testing"

func TestHashString(t *testing.T) {
	// seed 0 is plain FNV-1a
	if got := HashString("", 0); got != 14695981039346656037 {
		t.Errorf("HashString(\"\") = %d", got)
	}
	if got := HashString("a", 0); got != 0xaf63dc4c8601ec8c {
		t.Errorf("HashString(\"a\") = %#x", got)
	}

	if HashString("node-1", 0) == HashString("node-2", 0) {
		t.Errorf("Different names must hash differently")
	}
	if HashString("node-1", 0) == HashString("node-1", 7) {
		t.Errorf("The seed must change the hash")
	}
}
