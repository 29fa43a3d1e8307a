package util

import (
	"bytes"
	"sort"
	"testing"
)

func TestIntegerOrder(t *testing.T) {
	ints := []int64{-1 << 62, -1000, -1, 0, 1, 42, 1 << 40}
	for i := 1; i < len(ints); i++ {
		a, b := EncodeInt64(ints[i-1]), EncodeInt64(ints[i])
		if bytes.Compare(a, b) >= 0 {
			t.Errorf("EncodeInt64(%d) >= EncodeInt64(%d)", ints[i-1], ints[i])
		}
	}
	for _, v := range ints {
		got, err := DecodeInt64(EncodeInt64(v))
		if err != nil || got != v {
			t.Errorf("DecodeInt64(EncodeInt64(%d)) = %d, %v", v, got, err)
		}
	}
	if _, err := DecodeUint64([]byte{1, 2}); err == nil {
		t.Errorf("expected error for short input")
	}
}

func TestIndexKeyOrder(t *testing.T) {
	// encoded keys must sort like the user keys, regardless of oid and seq
	users := []string{"", "a", "a\x00", "a\x00\x00", "a\x01", "ab", "b"}
	var encoded [][]byte
	for i, k := range users {
		encoded = append(encoded, IndexKey([]byte(k), uint64(len(users)-i), uint32(i)))
	}
	if !sort.SliceIsSorted(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 }) {
		t.Errorf("encoded index keys are not ordered like their user keys")
	}

	for i, k := range users {
		key, oid, seq, err := SplitIndexKey(encoded[i])
		if err != nil {
			t.Fatalf("SplitIndexKey(%q) failed: %v", k, err)
		}
		if string(key) != k || oid != uint64(len(users)-i) || seq != uint32(i) {
			t.Errorf("SplitIndexKey(%q) = %q, %d, %d", k, key, oid, seq)
		}
	}
}

func TestIndexRange(t *testing.T) {
	entries := map[string][]byte{
		"a":    IndexKey([]byte("a"), 1, 1),
		"b":    IndexKey([]byte("b"), 2, 1),
		"b\x00": IndexKey([]byte("b\x00"), 3, 1),
		"ba":   IndexKey([]byte("ba"), 4, 1),
		"c":    IndexKey([]byte("c"), 5, 1),
	}

	inRange := func(k, lo, hi []byte) bool {
		return (lo == nil || bytes.Compare(k, lo) >= 0) && (hi == nil || bytes.Compare(k, hi) < 0)
	}

	cases := []struct {
		name     string
		from     []byte
		till     []byte
		expected []string
	}{
		{"Inclusive", []byte("b"), []byte("b"), []string{"b"}},
		{"Span", []byte("a"), []byte("ba"), []string{"a", "b", "b\x00", "ba"}},
		{"OpenLow", nil, []byte("a"), []string{"a"}},
		{"OpenHigh", []byte("ba"), nil, []string{"ba", "c"}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			lo, hi := IndexRange(c.from, c.till)
			var got []string
			for k, enc := range entries {
				if inRange(enc, lo, hi) {
					got = append(got, k)
				}
			}
			sort.Strings(got)
			if len(got) != len(c.expected) {
				t.Fatalf("expected %q, got %q", c.expected, got)
			}
			for i := range got {
				if got[i] != c.expected[i] {
					t.Errorf("expected %q, got %q", c.expected, got)
				}
			}
		})
	}

	lo, hi := IndexPrefixRange([]byte("b"))
	for k, enc := range entries {
		want := k == "b" || k == "b\x00" || k == "ba"
		if inRange(enc, lo, hi) != want {
			t.Errorf("prefix b: key %q in range = %v", k, !want)
		}
	}
}

func TestVersionKey(t *testing.T) {
	a := VersionKey(1, 2)
	b := VersionKey(1, 10)
	c := VersionKey(2, 1)
	if bytes.Compare(a, b) >= 0 || bytes.Compare(b, c) >= 0 {
		t.Errorf("version keys must order by oid, then seq")
	}
	oid, seq, err := SplitVersionKey(b)
	if err != nil || oid != 1 || seq != 10 {
		t.Errorf("SplitVersionKey = %d, %d, %v", oid, seq, err)
	}
	if _, _, err := SplitVersionKey([]byte{1}); err == nil {
		t.Errorf("expected error for short key")
	}
}
