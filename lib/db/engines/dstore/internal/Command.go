package internal

import (
	"encoding/binary"
	"fmt"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTApply CommandType = iota // Apply a write batch atomically.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTApply:
		return "Apply"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// WriteType is the kind of a single write inside a batch
type WriteType uint8

const (
	WriteTPut    WriteType = iota // Store a value.
	WriteTDelete                  // Remove a key.
)

func (wt WriteType) String() string {
	switch wt {
	case WriteTPut:
		return "Put"
	case WriteTDelete:
		return "Delete"
	default:
		return fmt.Sprintf("Unknown(%d)", wt)
	}
}

// Write is a single buffered write of a transaction
type Write struct {
	Type   WriteType
	Bucket string
	Key    []byte
	Value  []byte
}

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type   CommandType
	Writes []Write
}

// header: 1 byte type + 4 bytes write count
const commandHeaderSize = 1 + 4

// per write: 1 byte type + 2 bytes bucket length + 4 bytes key length + 4 bytes value length
const writeHeaderSize = 1 + 2 + 4 + 4

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	size := commandHeaderSize
	for _, w := range command.Writes {
		size += writeHeaderSize + len(w.Bucket) + len(w.Key) + len(w.Value)
	}
	return size
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for the command type,
// 4 bytes for the number of writes (big endian),
// and for every write:
// 1 byte write type, 2 bytes bucket length, 4 bytes key length, 4 bytes value length,
// followed by bucket, key and value data
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint32(result[1:5], uint32(len(command.Writes)))

	pos := commandHeaderSize
	for _, w := range command.Writes {
		result[pos] = byte(w.Type)
		binary.BigEndian.PutUint16(result[pos+1:pos+3], uint16(len(w.Bucket)))
		binary.BigEndian.PutUint32(result[pos+3:pos+7], uint32(len(w.Key)))
		binary.BigEndian.PutUint32(result[pos+7:pos+11], uint32(len(w.Value)))
		pos += writeHeaderSize

		pos += copy(result[pos:], w.Bucket)
		pos += copy(result[pos:], w.Key)
		pos += copy(result[pos:], w.Value)
	}

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < commandHeaderSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	count := binary.BigEndian.Uint32(data[1:5])

	// every write needs at least its header, reject absurd counts before allocating
	if uint64(count)*writeHeaderSize > uint64(len(data)-commandHeaderSize) {
		return fmt.Errorf("data too short for %d writes", count)
	}

	command.Writes = make([]Write, 0, count)
	pos := commandHeaderSize
	for i := uint32(0); i < count; i++ {
		if len(data) < pos+writeHeaderSize {
			return fmt.Errorf("data too short for header of write %d", i)
		}
		wt := WriteType(data[pos])
		bucketLen := int(binary.BigEndian.Uint16(data[pos+1 : pos+3]))
		keyLen := int(binary.BigEndian.Uint32(data[pos+3 : pos+7]))
		valueLen := int(binary.BigEndian.Uint32(data[pos+7 : pos+11]))
		pos += writeHeaderSize

		if len(data) < pos+bucketLen+keyLen+valueLen {
			return fmt.Errorf("data too short for write %d", i)
		}

		w := Write{
			Type:   wt,
			Bucket: string(data[pos : pos+bucketLen]),
			Key:    append([]byte(nil), data[pos+bucketLen:pos+bucketLen+keyLen]...),
		}
		pos += bucketLen + keyLen
		if valueLen > 0 {
			w.Value = append([]byte(nil), data[pos:pos+valueLen]...)
		}
		pos += valueLen

		command.Writes = append(command.Writes, w)
	}

	if pos != len(data) {
		return fmt.Errorf("%d trailing bytes after command", len(data)-pos)
	}
	return nil
}
