package queue

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	pendingPrefix    = "syncQueue:"
	deadLetterPrefix = "deadLetter:"
)

// LevelStore keeps the queue in a leveldb database (the syncQueueDB
// directory). Ids are encoded big-endian so the natural leveldb iteration
// order is the enqueue order.
type LevelStore struct {
	mu          sync.Mutex
	db          *leveldb.DB
	origin      *url.URL
	lastID      uint64
	maxAttempts int
	now         func() time.Time
}

type LevelStoreOptions struct {
	Origin      *url.URL
	MaxAttempts int
	Now         func() time.Time
}

func OpenLevelStore(path string, opts LevelStoreOptions) (*LevelStore, error) {
	if opts.Origin == nil {
		return nil, errors.New("queue store requires an origin")
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	store := &LevelStore{
		db:          db,
		origin:      opts.Origin,
		maxAttempts: opts.MaxAttempts,
		now:         opts.Now,
	}
	if store.now == nil {
		store.now = time.Now
	}
	if err := store.loadLastID(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *LevelStore) loadLastID() error {
	it := s.db.NewIterator(util.BytesPrefix([]byte(pendingPrefix)), nil)
	defer it.Release()
	var last uint64
	for it.Next() {
		if id, ok := decodeID(it.Key(), pendingPrefix); ok && id > last {
			last = id
		}
	}
	if err := it.Error(); err != nil {
		return err
	}
	dead := s.db.NewIterator(util.BytesPrefix([]byte(deadLetterPrefix)), nil)
	defer dead.Release()
	for dead.Next() {
		if id, ok := decodeID(dead.Key(), deadLetterPrefix); ok && id > last {
			last = id
		}
	}
	if err := dead.Error(); err != nil {
		return err
	}
	s.lastID = last
	return nil
}

func (s *LevelStore) Enqueue(desc Descriptor) (Item, error) {
	if s == nil {
		return Item{}, errors.New("queue store not initialized")
	}
	if err := validate(s.origin, desc); err != nil {
		return Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := Item{
		ID:        s.nextIDLocked(),
		URL:       resolve(s.origin, desc.URL),
		Method:    desc.Method,
		Headers:   desc.Headers,
		Body:      desc.Body,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	}
	raw, err := encodeItem(item)
	if err != nil {
		return Item{}, err
	}
	if err := s.db.Put(pendingKey(item.ID), raw, nil); err != nil {
		return Item{}, err
	}
	return item, nil
}

// nextIDLocked allocates a fresh id: wall-clock nanoseconds, bumped past the
// previous allocation so ids stay strictly increasing even when the clock
// stalls or steps backwards.
func (s *LevelStore) nextIDLocked() uint64 {
	id := uint64(s.now().UnixNano())
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

func (s *LevelStore) Drain() ([]Item, error) {
	if s == nil {
		return nil, errors.New("queue store not initialized")
	}
	return s.scan(pendingPrefix)
}

func (s *LevelStore) DeadLetters() ([]Item, error) {
	if s == nil {
		return nil, errors.New("queue store not initialized")
	}
	return s.scan(deadLetterPrefix)
}

func (s *LevelStore) scan(prefix string) ([]Item, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()
	var items []Item
	for it.Next() {
		var item Item
		if err := decodeItem(it.Value(), &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *LevelStore) Remove(id uint64) error {
	if s == nil {
		return errors.New("queue store not initialized")
	}
	return s.db.Delete(pendingKey(id), nil)
}

func (s *LevelStore) RecordFailure(item Item) (bool, error) {
	if s == nil {
		return false, errors.New("queue store not initialized")
	}
	item.Attempts++
	raw, err := encodeItem(item)
	if err != nil {
		return false, err
	}
	if s.maxAttempts > 0 && item.Attempts >= s.maxAttempts {
		batch := new(leveldb.Batch)
		batch.Delete(pendingKey(item.ID))
		batch.Put(deadLetterKey(item.ID), raw)
		return true, s.db.Write(batch, nil)
	}
	return false, s.db.Put(pendingKey(item.ID), raw, nil)
}

func (s *LevelStore) Depth() (int, error) {
	if s == nil {
		return 0, errors.New("queue store not initialized")
	}
	it := s.db.NewIterator(util.BytesPrefix([]byte(pendingPrefix)), nil)
	defer it.Release()
	count := 0
	for it.Next() {
		count++
	}
	return count, it.Error()
}

func (s *LevelStore) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func pendingKey(id uint64) []byte {
	return appendID([]byte(pendingPrefix), id)
}

func deadLetterKey(id uint64) []byte {
	return appendID([]byte(deadLetterPrefix), id)
}

func appendID(prefix []byte, id uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], id)
	return key
}

func decodeID(key []byte, prefix string) (uint64, bool) {
	if len(key) != len(prefix)+8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[len(prefix):]), true
}

func encodeItem(item Item) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(item); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeItem(data []byte, item *Item) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(item)
}
