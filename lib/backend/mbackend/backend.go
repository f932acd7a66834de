package mbackend

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/ValentinKolb/dTree/lib/backend"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum      = "DTREEMEM" // File format identifier
	formatVersion = 1          // Snapshot version
)

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

// MemoryBackend is an in-memory backend.IBackend with binary snapshots.
type MemoryBackend struct {
	records *xsync.MapOf[string, []byte]
	closed  atomic.Bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: xsync.NewMapOf[string, []byte](),
	}
}

// Factory returns a backend.Factory that creates fresh in-memory backends.
func Factory() backend.Factory {
	return func() (backend.IBackend, error) {
		return NewMemoryBackend(), nil
	}
}

// Len returns the number of stored records.
//
// Thread-safety: This method is thread-safe, the result is a snapshot.
func (m *MemoryBackend) Len() int {
	return m.records.Size()
}

func (m *MemoryBackend) checkOpen() error {
	if m.closed.Load() {
		return backend.NewError(backend.RetCClosed, "memory backend is closed")
	}
	return nil
}

func clone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

// --------------------------------------------------------------------------
// Interface Methods (docu see backend/interface.go)
// --------------------------------------------------------------------------

func (m *MemoryBackend) Get(_ context.Context, path string) ([]byte, bool, error) {
	if err := m.checkOpen(); err != nil {
		return nil, false, err
	}
	data, ok := m.records.Load(path)
	if !ok {
		return nil, false, nil
	}
	return clone(data), true, nil
}

func (m *MemoryBackend) Set(_ context.Context, path string, data []byte) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.records.Store(path, clone(data))
	return nil
}

func (m *MemoryBackend) Remove(_ context.Context, path string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.records.Delete(path)
	return nil
}

func (m *MemoryBackend) ChildrenOf(_ context.Context, path string) ([]string, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	return m.collect(backend.IsChildPath(path)), nil
}

func (m *MemoryBackend) DescendantsOf(_ context.Context, path string) ([]string, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	return m.collect(backend.IsDescendantPath(path)), nil
}

func (m *MemoryBackend) Close() error {
	m.closed.Store(true)
	return nil
}

// GetMultiple implements backend.IMultiGetter.
func (m *MemoryBackend) GetMultiple(_ context.Context, paths []string) (map[string][]byte, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	records := make(map[string][]byte, len(paths))
	for _, p := range paths {
		if data, ok := m.records.Load(p); ok {
			records[p] = clone(data)
		}
	}
	return records, nil
}

// RemoveMultiple implements backend.IMultiRemover.
func (m *MemoryBackend) RemoveMultiple(_ context.Context, paths []string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	for _, p := range paths {
		m.records.Delete(p)
	}
	return nil
}

func (m *MemoryBackend) collect(match func(string) bool) []string {
	var paths []string
	m.records.Range(func(key string, _ []byte) bool {
		if match(key) {
			paths = append(paths, key)
		}
		return true
	})
	return paths
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

// Save writes all records to w.
//
// Thread-safety: This method can be called concurrently with writes, but the
// snapshot is not a consistent cut in that case.
func (m *MemoryBackend) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	type recordToSave struct {
		path string
		data []byte
	}
	var records []recordToSave
	m.records.Range(func(key string, data []byte) bool {
		records = append(records, recordToSave{key, data})
		return true
	})

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(formatVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(records))); err != nil {
		return err
	}

	for _, r := range records {
		if err := writeBytes(bw, []byte(r.path)); err != nil {
			return err
		}
		if err := writeBytes(bw, r.data); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load replaces all records with the ones read from r.
//
// Thread-safety: This method must not be called concurrently with any other method.
func (m *MemoryBackend) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != formatVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, formatVersion)
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	records := xsync.NewMapOf[string, []byte]()
	for i := uint64(0); i < count; i++ {
		path, err := readBytes(br)
		if err != nil {
			return err
		}
		data, err := readBytes(br)
		if err != nil {
			return err
		}
		records.Store(string(path), data)
	}

	m.records = records
	return nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
