package internal

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name:     "Empty batch",
			command:  Command{Type: CommandTApply},
			expected: 1 + 4,
		},
		{
			name: "Put with bucket, key and value",
			command: Command{
				Type: CommandTApply,
				Writes: []Write{
					{Type: WriteTPut, Bucket: "bucket", Key: []byte("testkey"), Value: []byte("testvalue")},
				},
			},
			expected: 1 + 4 + (1 + 2 + 4 + 4) + 6 + 7 + 9,
		},
		{
			name: "Put and Delete",
			command: Command{
				Type: CommandTApply,
				Writes: []Write{
					{Type: WriteTPut, Bucket: "b", Key: []byte("k"), Value: []byte("v")},
					{Type: WriteTDelete, Bucket: "b", Key: []byte("k")},
				},
			},
			expected: 1 + 4 + (11 + 3) + (11 + 2),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.command.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
			if got := len(tt.command.Serialize()); got != tt.expected {
				t.Errorf("len(Serialize()) = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name:    "Empty batch",
			command: Command{Type: CommandTApply},
		},
		{
			name: "Mixed batch",
			command: Command{
				Type: CommandTApply,
				Writes: []Write{
					{Type: WriteTPut, Bucket: "versions", Key: []byte{0, 0, 0, 1}, Value: []byte("header+body")},
					{Type: WriteTDelete, Bucket: "index/doc/key", Key: []byte("a\x00\x01")},
					{Type: WriteTPut, Bucket: "root", Key: []byte("trans-id"), Value: nil},
				},
			},
		},
		{
			name: "Binary and empty fields",
			command: Command{
				Type: CommandTApply,
				Writes: []Write{
					{Type: WriteTPut, Bucket: "", Key: []byte{}, Value: []byte{0x00, 0xFF, 0x10}},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()

			var got Command
			if err := got.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if got.Type != tt.command.Type {
				t.Errorf("Type = %v, want %v", got.Type, tt.command.Type)
			}
			if len(got.Writes) != len(tt.command.Writes) {
				t.Fatalf("len(Writes) = %d, want %d", len(got.Writes), len(tt.command.Writes))
			}
			for i, want := range tt.command.Writes {
				w := got.Writes[i]
				if w.Type != want.Type || w.Bucket != want.Bucket ||
					!bytes.Equal(w.Key, want.Key) || !bytes.Equal(w.Value, want.Value) {
					t.Errorf("Write %d = %+v, want %+v", i, w, want)
				}
			}
		})
	}
}

// TestDeserializeErrors tests error handling in Deserialize
func TestDeserializeErrors(t *testing.T) {
	valid := (&Command{
		Type:   CommandTApply,
		Writes: []Write{{Type: WriteTPut, Bucket: "b", Key: []byte("key"), Value: []byte("value")}},
	}).Serialize()

	hugeCount := make([]byte, 5)
	binary.BigEndian.PutUint32(hugeCount[1:], 1<<31)

	tests := []struct {
		name string
		data []byte
	}{
		{"Empty data", []byte{}},
		{"Header only partially present", []byte{0, 0, 0}},
		{"Huge write count", hugeCount},
		{"Truncated write header", valid[:8]},
		{"Truncated value", valid[:len(valid)-1]},
		{"Trailing bytes", append(append([]byte(nil), valid...), 0x01)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			if err := cmd.Deserialize(tt.data); err == nil {
				t.Errorf("Deserialize() expected error for %s", tt.name)
			}
		})
	}
}

// TestTypeStrings tests the String methods
func TestTypeStrings(t *testing.T) {
	if CommandTApply.String() != "Apply" {
		t.Errorf("CommandTApply.String() = %s", CommandTApply.String())
	}
	if CommandType(42).String() != "Unknown(42)" {
		t.Errorf("CommandType(42).String() = %s", CommandType(42).String())
	}
	if WriteTDelete.String() != "Delete" {
		t.Errorf("WriteTDelete.String() = %s", WriteTDelete.String())
	}
	if QueryTScan.String() != "Scan" {
		t.Errorf("QueryTScan.String() = %s", QueryTScan.String())
	}
}
