// Package util
//
// This file contains order preserving key encodings for engine buckets.
//
// Integers are encoded big endian (signed values with the sign bit flipped) so
// that bytewise ordering equals numeric ordering. Composite index keys consist
// of an escaped user key followed by a terminator and fixed width suffixes:
//
//	escape(key) 0x00 0x01 | oid (8 bytes) | seq (4 bytes)
//
// Escaping replaces every 0x00 in the user key with 0x00 0xFF, so the
// terminator sorts below any continuation of the key and "a" < "a\x00" < "ab"
// holds for the encoded form as well.
package util

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	escByte     = 0x00
	escEscaped  = 0xFF
	escTerm     = 0x01
	escTermHigh = 0x02
)

var ErrMalformedKey = errors.New("malformed composite key")

// ----------------------------------------------------------------------------
// Integers
// ----------------------------------------------------------------------------

// EncodeUint64 returns the 8 byte big endian encoding of v
func EncodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// DecodeUint64 is the inverse of EncodeUint64
func DecodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, ErrMalformedKey
	}
	return binary.BigEndian.Uint64(b), nil
}

// EncodeInt64 encodes v so that negative values sort before positive ones
func EncodeInt64(v int64) []byte {
	return EncodeUint64(uint64(v) ^ (1 << 63))
}

// DecodeInt64 is the inverse of EncodeInt64
func DecodeInt64(b []byte) (int64, error) {
	u, err := DecodeUint64(b)
	if err != nil {
		return 0, err
	}
	return int64(u ^ (1 << 63)), nil
}

// ----------------------------------------------------------------------------
// Escaped byte strings
// ----------------------------------------------------------------------------

// EscapeKey escapes all zero bytes of key
func EscapeKey(key []byte) []byte {
	out := make([]byte, 0, len(key)+2)
	for _, b := range key {
		out = append(out, b)
		if b == escByte {
			out = append(out, escEscaped)
		}
	}
	return out
}

// unescapeKey decodes an escaped key up to (not including) the terminator and
// returns the remaining bytes after the terminator.
func unescapeKey(b []byte) (key, rest []byte, err error) {
	key = make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != escByte {
			key = append(key, b[i])
			continue
		}
		if i+1 >= len(b) {
			return nil, nil, ErrMalformedKey
		}
		switch b[i+1] {
		case escEscaped:
			key = append(key, escByte)
			i++
		case escTerm:
			return key, b[i+2:], nil
		default:
			return nil, nil, ErrMalformedKey
		}
	}
	return nil, nil, ErrMalformedKey
}

// ----------------------------------------------------------------------------
// Index keys
// ----------------------------------------------------------------------------

// IndexKey builds the composite key for one index entry of version seq of object oid
func IndexKey(key []byte, oid uint64, seq uint32) []byte {
	out := EscapeKey(key)
	out = append(out, escByte, escTerm)
	out = binary.BigEndian.AppendUint64(out, oid)
	out = binary.BigEndian.AppendUint32(out, seq)
	return out
}

// SplitIndexKey decodes a composite key built by IndexKey
func SplitIndexKey(b []byte) (key []byte, oid uint64, seq uint32, err error) {
	key, rest, err := unescapeKey(b)
	if err != nil {
		return nil, 0, 0, err
	}
	if len(rest) != 12 {
		return nil, 0, 0, ErrMalformedKey
	}
	return key, binary.BigEndian.Uint64(rest[:8]), binary.BigEndian.Uint32(rest[8:]), nil
}

// IndexRange returns scan bounds [from, to) covering every index entry whose
// user key k satisfies from <= k <= till. A nil bound is open.
func IndexRange(from, till []byte) (lo, hi []byte) {
	if from != nil {
		lo = EscapeKey(from)
		lo = append(lo, escByte, escTerm)
	}
	if till != nil {
		hi = EscapeKey(till)
		hi = append(hi, escByte, escTermHigh)
	}
	return lo, hi
}

// IndexPrefixRange returns scan bounds covering every index entry whose user
// key starts with prefix.
func IndexPrefixRange(prefix []byte) (lo, hi []byte) {
	esc := EscapeKey(prefix)
	if len(esc) == 0 {
		return nil, nil
	}
	lo = esc
	hi = bytes.Clone(esc)
	for i := len(hi) - 1; i >= 0; i-- {
		if hi[i] < 0xff {
			hi[i]++
			return lo, hi[:i+1]
		}
	}
	return lo, nil
}

// VersionKey builds the key of a stored version: oid | seq
func VersionKey(oid uint64, seq uint32) []byte {
	out := make([]byte, 12)
	binary.BigEndian.PutUint64(out, oid)
	binary.BigEndian.PutUint32(out[8:], seq)
	return out
}

// SplitVersionKey decodes a key built by VersionKey
func SplitVersionKey(b []byte) (oid uint64, seq uint32, err error) {
	if len(b) != 12 {
		return 0, 0, ErrMalformedKey
	}
	return binary.BigEndian.Uint64(b), binary.BigEndian.Uint32(b[8:]), nil
}
