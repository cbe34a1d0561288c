package engine

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/allen1211/kvsd/pkg/fsutil"
)

// levelStore is the shared state behind every LevelEngine handle cloned
// from the same OpenLevelDB call: an embedded-database-backed realization
// of the engine contract, refcounted the same way the builtin store is.
type levelStore struct {
	db   *leveldb.DB
	refs int32 // atomic
}

// LevelEngine is the alternate engine realization (spec §4.C'): a
// goleveldb-backed Engine. LevelDB performs its own internal compaction,
// so this realization needs none of the builtin engine's generation/index
// bookkeeping; it only has to translate Engine calls onto *leveldb.DB.
type LevelEngine struct {
	s *levelStore
}

// OpenLevelDB opens (or creates) a goleveldb database under dir's
// "leveldb" subdirectory.
func OpenLevelDB(dir string) (*LevelEngine, error) {
	if err := fsutil.CheckAndMkdir(dir); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	levelDir := filepath.Join(dir, "leveldb")

	options := &opt.Options{
		WriteBuffer: 4 * 1024 * 1024,
	}
	db, err := leveldb.OpenFile(levelDir, options)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", levelDir, err)
	}
	return &LevelEngine{s: &levelStore{db: db, refs: 1}}, nil
}

func (e *LevelEngine) Get(key string) (string, bool, error) {
	val, err := e.s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(val), true, nil
}

func (e *LevelEngine) Set(key, value string) error {
	return e.s.db.Put([]byte(key), []byte(value), nil)
}

func (e *LevelEngine) Remove(key string) error {
	_, err := e.s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return ErrKeyNotFound
	}
	if err != nil {
		return err
	}
	return e.s.db.Delete([]byte(key), nil)
}

func (e *LevelEngine) Stats() (Stats, error) {
	iter := e.s.db.NewIterator(nil, nil)
	defer iter.Release()
	keys := 0
	for iter.Next() {
		keys++
	}
	if err := iter.Error(); err != nil {
		return Stats{}, err
	}
	return Stats{Engine: LevelDB, Keys: keys}, nil
}

// Clone returns a handle sharing the same *leveldb.DB; goleveldb is itself
// safe for concurrent use by multiple goroutines, so no extra
// synchronization is needed beyond what the library already provides
// (spec §4.B's shareable-handle contract).
func (e *LevelEngine) Clone() Engine {
	atomic.AddInt32(&e.s.refs, 1)
	return &LevelEngine{s: e.s}
}

func (e *LevelEngine) Close() error {
	if atomic.AddInt32(&e.s.refs, -1) > 0 {
		return nil
	}
	return e.s.db.Close()
}
