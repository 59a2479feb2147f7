// Package headercache persists fetched block headers in a Pebble key/value
// store keyed by height, so repeated drift analyses do not refetch headers
// the node has already served.
package headercache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
)

const (
	recordVersion = 1
	recordSize    = 1 + chainhash.HashSize*2 + 8 + 8 + 4

	heightPrefix = "h|"
)

var (
	errStoreClosed   = errors.New("headercache: store is closed")
	errInvalidRecord = errors.New("headercache: invalid record encoding")
)

const (
	defaultCacheSizeBytes  = int64(8 << 20) // 8MB block cache; headers are tiny
	defaultBloomFilterBits = 10             // Bits per key for bloom filters on SSTables
	defaultMemTableBytes   = uint64(4 << 20)
)

// Options controls Pebble tuning. Zero/negative fields are replaced with safe
// defaults.
type Options struct {
	CacheSizeBytes        int64
	BloomFilterBitsPerKey int
	MemTableSizeBytes     uint64
}

// Header is the subset of a verbose block header the drift analysis needs.
type Header struct {
	Height       int64
	Hash         chainhash.Hash
	PreviousHash chainhash.Hash
	Time         int64
	Nonce        uint64
	BlockVersion int32
}

// Store is a height-keyed header cache.
type Store struct {
	db    *pebble.DB
	cache *pebble.Cache // owned cache for the DB; unref'd on Close

	mu     sync.Mutex
	closed bool
}

// Open opens (creating if necessary) the header cache at path.
func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("headercache: database path is empty")
	}
	opts = sanitizeOptions(opts)

	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("headercache: %s exists and is not a directory", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("headercache: stat path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("headercache: ensure directory: %w", err)
	}

	pebbleOpts := &pebble.Options{
		Cache:        pebble.NewCache(opts.CacheSizeBytes),
		MemTableSize: opts.MemTableSizeBytes,
	}
	filter := bloom.FilterPolicy(opts.BloomFilterBitsPerKey)
	level := pebble.LevelOptions{
		FilterPolicy: filter,
		FilterType:   pebble.TableFilter,
	}
	pebbleOpts.Levels = make([]pebble.LevelOptions, 7)
	for i := range pebbleOpts.Levels {
		pebbleOpts.Levels[i] = level
	}

	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		pebbleOpts.Cache.Unref()
		return nil, fmt.Errorf("headercache: open: %w", err)
	}
	return &Store{db: db, cache: pebbleOpts.Cache}, nil
}

// Get returns the cached header for height, or ok=false on a miss.
func (s *Store) Get(height int64) (*Header, bool, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, false, err
	}
	value, closer, err := s.db.Get(heightKey(height))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("headercache: get height %d: %w", height, err)
	}
	defer closer.Close()

	header, err := decodeRecord(height, value)
	if err != nil {
		return nil, false, err
	}
	return header, true, nil
}

// Put stores a header under its height. Writes are synced: a cache that loses
// entries on crash would silently force refetches, nothing worse, but headers
// are cheap to fsync.
func (s *Store) Put(header *Header) error {
	if header == nil {
		return errors.New("headercache: nil header")
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := s.db.Set(heightKey(header.Height), encodeRecord(header), pebble.Sync); err != nil {
		return fmt.Errorf("headercache: put height %d: %w", header.Height, err)
	}
	return nil
}

// Count returns the number of cached headers.
func (s *Store) Count() (int64, error) {
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}
	iter, err := s.db.NewIter(iterOptionsForPrefix(heightPrefix))
	if err != nil {
		return 0, fmt.Errorf("headercache: iterator: %w", err)
	}
	defer iter.Close()

	var count int64
	for iter.First(); iter.Valid(); iter.Next() {
		count++
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("headercache: count: %w", err)
	}
	return count, nil
}

// Close closes the store. Safe to call repeatedly.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.db.Close()
	if s.cache != nil {
		s.cache.Unref()
		s.cache = nil
	}
	if err != nil {
		return fmt.Errorf("headercache: close: %w", err)
	}
	return nil
}

func (s *Store) ensureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}
	return nil
}

func sanitizeOptions(opts Options) Options {
	if opts.CacheSizeBytes <= 0 {
		opts.CacheSizeBytes = defaultCacheSizeBytes
	}
	if opts.BloomFilterBitsPerKey <= 0 {
		opts.BloomFilterBitsPerKey = defaultBloomFilterBits
	}
	if opts.MemTableSizeBytes == 0 {
		opts.MemTableSizeBytes = defaultMemTableBytes
	}
	return opts
}

func heightKey(height int64) []byte {
	key := make([]byte, len(heightPrefix)+8)
	copy(key, heightPrefix)
	binary.BigEndian.PutUint64(key[len(heightPrefix):], uint64(height))
	return key
}

func encodeRecord(header *Header) []byte {
	buf := make([]byte, recordSize)
	buf[0] = recordVersion
	off := 1
	copy(buf[off:], header.Hash[:])
	off += chainhash.HashSize
	copy(buf[off:], header.PreviousHash[:])
	off += chainhash.HashSize
	binary.BigEndian.PutUint64(buf[off:], uint64(header.Time))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], header.Nonce)
	off += 8
	binary.BigEndian.PutUint32(buf[off:], uint32(header.BlockVersion))
	return buf
}

func decodeRecord(height int64, value []byte) (*Header, error) {
	if len(value) != recordSize || value[0] != recordVersion {
		return nil, errInvalidRecord
	}
	header := &Header{Height: height}
	off := 1
	copy(header.Hash[:], value[off:off+chainhash.HashSize])
	off += chainhash.HashSize
	copy(header.PreviousHash[:], value[off:off+chainhash.HashSize])
	off += chainhash.HashSize
	header.Time = int64(binary.BigEndian.Uint64(value[off:]))
	off += 8
	header.Nonce = binary.BigEndian.Uint64(value[off:])
	off += 8
	header.BlockVersion = int32(binary.BigEndian.Uint32(value[off:]))
	return header, nil
}

func iterOptionsForPrefix(prefix string) *pebble.IterOptions {
	lower := []byte(prefix)
	upper := append([]byte(prefix[:len(prefix)-1]), prefix[len(prefix)-1]+1)
	return &pebble.IterOptions{LowerBound: lower, UpperBound: upper}
}
