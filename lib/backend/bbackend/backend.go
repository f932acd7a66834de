package bbackend

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dTree/lib/backend"
	"go.etcd.io/bbolt"
)

var bucketName = []byte("nodes")

// keyPrefix is prepended to every path because bbolt rejects empty keys.
const keyPrefix = '/'

// Options configures the bbolt file.
type Options struct {
	Timeout time.Duration // How long to wait for the file lock (0 = 1 sec)
	NoSync  bool          // Skip fsync after each commit (for tests)
}

// BoltBackend is a backend.IBackend that stores records in a bbolt file.
type BoltBackend struct {
	bdb *bbolt.DB
}

// Open opens (or creates) the bbolt file at path.
func Open(path string, opt Options) (*BoltBackend, error) {
	if opt.Timeout == 0 {
		opt.Timeout = time.Second
	}
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = opt.Timeout
	bopt.NoSync = opt.NoSync
	bopt.FreelistType = bbolt.FreelistMapType

	bdb, err := bbolt.Open(path, 0600, &bopt)
	if err != nil {
		return nil, fmt.Errorf("bbackend: %w", err)
	}

	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("bbackend: creating bucket: %w", err)
	}

	return &BoltBackend{bdb: bdb}, nil
}

// Factory returns a backend.Factory that opens the bbolt file at path.
func Factory(path string, opt Options) backend.Factory {
	return func() (backend.IBackend, error) {
		return Open(path, opt)
	}
}

func encodeKey(path string) []byte {
	k := make([]byte, 0, len(path)+1)
	k = append(k, keyPrefix)
	return append(k, path...)
}

func decodeKey(k []byte) string {
	return string(k[1:])
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == bbolt.ErrDatabaseNotOpen {
		return backend.NewError(backend.RetCClosed, "bolt backend is closed")
	}
	return backend.NewError(backend.RetCInternalError, fmt.Sprintf("%s: %v", op, err))
}

// --------------------------------------------------------------------------
// Interface Methods (docu see backend/interface.go)
// --------------------------------------------------------------------------

func (b *BoltBackend) Get(_ context.Context, path string) (data []byte, loaded bool, err error) {
	err = b.bdb.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(encodeKey(path))
		if v != nil {
			// values are only valid during the transaction
			data = bytes.Clone(v)
			loaded = true
		}
		return nil
	})
	return data, loaded, wrapErr("get", err)
}

func (b *BoltBackend) Set(_ context.Context, path string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	err := b.bdb.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(encodeKey(path), data)
	})
	return wrapErr("set", err)
}

func (b *BoltBackend) Remove(_ context.Context, path string) error {
	err := b.bdb.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete(encodeKey(path))
	})
	return wrapErr("remove", err)
}

func (b *BoltBackend) ChildrenOf(_ context.Context, path string) ([]string, error) {
	paths, err := b.scan(path, backend.IsChildPath(path))
	return paths, wrapErr("children", err)
}

func (b *BoltBackend) DescendantsOf(_ context.Context, path string) ([]string, error) {
	paths, err := b.scan(path, backend.IsDescendantPath(path))
	return paths, wrapErr("descendants", err)
}

func (b *BoltBackend) Close() error {
	return b.bdb.Close()
}

// GetMultiple implements backend.IMultiGetter with a single read transaction.
func (b *BoltBackend) GetMultiple(_ context.Context, paths []string) (map[string][]byte, error) {
	records := make(map[string][]byte, len(paths))
	err := b.bdb.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		for _, p := range paths {
			if v := bucket.Get(encodeKey(p)); v != nil {
				records[p] = bytes.Clone(v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("get multiple", err)
	}
	return records, nil
}

// RemoveMultiple implements backend.IMultiRemover with a single write transaction.
func (b *BoltBackend) RemoveMultiple(_ context.Context, paths []string) error {
	err := b.bdb.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		for _, p := range paths {
			if err := bucket.Delete(encodeKey(p)); err != nil {
				return err
			}
		}
		return nil
	})
	return wrapErr("remove multiple", err)
}

// --------------------------------------------------------------------------
// Prefix scans
// --------------------------------------------------------------------------

// scan collects all keys below path that satisfy match. For the root the whole
// bucket is scanned, otherwise only the ranges "/path/" and "/path[".
func (b *BoltBackend) scan(path string, match func(string) bool) ([]string, error) {
	var prefixes [][]byte
	if path == "" {
		prefixes = [][]byte{{keyPrefix}}
	} else {
		prefixes = [][]byte{encodeKey(path + "/"), encodeKey(path + "[")}
	}

	var paths []string
	err := b.bdb.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for _, prefix := range prefixes {
			for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
				if p := decodeKey(k); match(p) {
					paths = append(paths, p)
				}
			}
		}
		return nil
	})
	return paths, err
}
