package cachestore

import (
	"bytes"
	"encoding/gob"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const entryKeyPrefix = "g:"

// DiskStore persists generations in a leveldb database. Keys are laid out as
// "g:<generation>|<url>" so one generation occupies a contiguous key range
// and can be enumerated or dropped with a single prefix scan.
type DiskStore struct {
	mu             sync.Mutex
	db             *leveldb.DB
	maxObjectBytes int64
}

func OpenDiskStore(path string, maxObjectBytes int64) (*DiskStore, error) {
	if maxObjectBytes <= 0 {
		maxObjectBytes = DefaultMaxObjectBytes
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &DiskStore{db: db, maxObjectBytes: maxObjectBytes}, nil
}

func (d *DiskStore) Get(generation string, key string) (Entry, bool) {
	if d == nil || generation == "" || key == "" {
		return Entry{}, false
	}
	raw, err := d.db.Get(entryKey(generation, key), nil)
	if err != nil {
		return Entry{}, false
	}
	var entry Entry
	if err := decodeGob(raw, &entry); err != nil {
		return Entry{}, false
	}
	return entry, true
}

func (d *DiskStore) Set(generation string, key string, entry Entry) error {
	if d == nil {
		return errors.New("cache store not initialized")
	}
	if generation == "" || key == "" {
		return errors.New("generation and key are required")
	}
	if strings.Contains(generation, "|") {
		return errors.New("generation name must not contain '|'")
	}
	if d.maxObjectBytes > 0 && int64(len(entry.Body)) > d.maxObjectBytes {
		return errors.New("cache entry exceeds max object bytes")
	}
	raw, err := encodeGob(entry)
	if err != nil {
		return err
	}
	return d.db.Put(entryKey(generation, key), raw, nil)
}

func (d *DiskStore) Delete(generation string, key string) {
	if d == nil {
		return
	}
	_ = d.db.Delete(entryKey(generation, key), nil)
}

func (d *DiskStore) Generations() ([]string, error) {
	if d == nil {
		return nil, nil
	}
	it := d.db.NewIterator(util.BytesPrefix([]byte(entryKeyPrefix)), nil)
	defer it.Release()

	seen := map[string]struct{}{}
	for it.Next() {
		rest := bytes.TrimPrefix(it.Key(), []byte(entryKeyPrefix))
		sep := bytes.IndexByte(rest, '|')
		if sep < 0 {
			continue
		}
		seen[string(rest[:sep])] = struct{}{}
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *DiskStore) DropGeneration(generation string) error {
	if d == nil || generation == "" {
		return nil
	}
	prefix := []byte(entryKeyPrefix + generation + "|")
	it := d.db.NewIterator(util.BytesPrefix(prefix), nil)
	batch := new(leveldb.Batch)
	for it.Next() {
		key := make([]byte, len(it.Key()))
		copy(key, it.Key())
		batch.Delete(key)
	}
	it.Release()
	if err := it.Error(); err != nil {
		return err
	}
	return d.db.Write(batch, nil)
}

func (d *DiskStore) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func entryKey(generation string, key string) []byte {
	return []byte(entryKeyPrefix + generation + "|" + key)
}

func encodeGob(value interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, target interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(target)
}
