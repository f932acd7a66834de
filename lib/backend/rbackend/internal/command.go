package internal

import (
	"encoding/binary"
	"fmt"
)

// CommandType defines the possible write operations for the state machine.
type CommandType uint8

const (
	CommandTSet            CommandType = iota // Insert or overwrite a record.
	CommandTRemove                            // Remove a single record.
	CommandTRemoveMultiple                    // Remove many records in one log entry.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTSet:
		return "Set"
	case CommandTRemove:
		return "Remove"
	case CommandTRemoveMultiple:
		return "RemoveMultiple"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type  CommandType
	Paths []string // Set and Remove carry exactly one path
	Value []byte
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	size := 1 + 4 // Type + PathCount
	for _, p := range command.Paths {
		size += 4 + len(p) // PathLen + Path
	}
	return size + len(command.Value)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 4 bytes for the number of paths (big endian),
// for each path 4 bytes length (big endian) and N bytes path data,
// N bytes for value data (optional, everything after the last path)
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint32(result[1:5], uint32(len(command.Paths)))

	offset := 5
	for _, p := range command.Paths {
		binary.BigEndian.PutUint32(result[offset:offset+4], uint32(len(p)))
		offset += 4
		offset += copy(result[offset:], p)
	}

	copy(result[offset:], command.Value)
	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	// Minimum size: 1 (Type) + 4 (PathCount) = 5 bytes
	if len(data) < 5 {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	count := binary.BigEndian.Uint32(data[1:5])

	// every path needs at least its length prefix
	if uint64(count)*4 > uint64(len(data)-5) {
		return fmt.Errorf("data too short for %d paths", count)
	}

	command.Paths = make([]string, 0, count)
	offset := 5
	for i := uint32(0); i < count; i++ {
		if len(data) < offset+4 {
			return fmt.Errorf("data too short for length of path %d", i)
		}
		pathLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
		offset += 4
		if len(data) < offset+pathLen {
			return fmt.Errorf("data too short for path of length %d", pathLen)
		}
		command.Paths = append(command.Paths, string(data[offset:offset+pathLen]))
		offset += pathLen
	}

	if len(data) > offset {
		command.Value = make([]byte, len(data)-offset)
		copy(command.Value, data[offset:])
	} else {
		command.Value = nil
	}

	return nil
}
