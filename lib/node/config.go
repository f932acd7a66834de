package node

// Config configures a Storage. Use DefaultConfig and change what you need.
type Config struct {
	// MaxInlineValueSize is the size threshold for values stored inline in their
	// parent record (string and reference length, binary byte length).
	MaxInlineValueSize int
	// RemoveVoidProperties silently drops Undefined properties instead of
	// rejecting the write.
	RemoveVoidProperties bool
	// Serializer encodes records for the backend (nil = JSON).
	Serializer IRecordSerializer
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig() Config {
	return Config{
		MaxInlineValueSize:   50,
		RemoveVoidProperties: false,
		Serializer:           NewJSONSerializer(),
	}
}
