package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/allen1211/kvsd/pkg/fsutil"
)

// compactionThreshold is the uncompacted-byte watermark that triggers a
// compaction (spec §4.C step 4). 1 MiB, as suggested by spec §4.C.
const compactionThreshold = 1 << 20

const logFileExt = ".log"

// store is the shared state behind every KvStore handle cloned from the
// same Open call: one index, one reader cache, one single-writer path.
// Cloning a KvStore only copies a pointer to this struct and bumps refs;
// Close decrements refs and only tears anything down once the last handle
// is gone.
type store struct {
	dir string

	index   *index
	readers *readerCache
	metrics *engineMetrics

	writerMu sync.Mutex
	writer   *countingWriter
	writeGen uint64

	uncompacted uint64 // atomic

	refs int32 // atomic
}

// KvStore is the built-in log-structured realization of engine.Engine
// (spec §4.C). It is cheap to Clone and safe to use concurrently from many
// goroutines, satisfying the shareable-handle contract of spec §4.B.
type KvStore struct {
	s *store
}

// Open opens (or creates) the log-structured store rooted at dir, replaying
// every generation file in ascending order before returning a ready
// handle (spec §3 Lifecycle).
func Open(dir string) (*KvStore, error) {
	if err := fsutil.CheckAndMkdir(dir); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	gens, err := listGenerations(dir)
	if err != nil {
		return nil, err
	}

	ix := newIndex()
	readers := newReaderCache(dir)
	var uncompacted uint64

	for i, gen := range gens {
		f, err := os.OpenFile(logFileName(dir, gen), os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("open generation %d: %w", gen, err)
		}
		isLast := i == len(gens)-1
		n, goodUpTo, size, err := loadLog(gen, f, ix)
		if err != nil {
			f.Close()
			return nil, err
		}
		if goodUpTo < size {
			if !isLast {
				f.Close()
				return nil, fmt.Errorf("%w: generation %d has trailing undecodable bytes", ErrCorrupt, gen)
			}
			// Recovery from truncation (spec §8): the active file's last
			// record was cut short (e.g. a crash mid-write). Truncate to
			// the last good record boundary and move on.
			if err := f.Truncate(goodUpTo); err != nil {
				f.Close()
				return nil, fmt.Errorf("truncate generation %d to last good record: %w", gen, err)
			}
		}
		uncompacted += n
		readers.put(gen, f)
	}

	writeGen := uint64(0)
	if len(gens) > 0 {
		writeGen = gens[len(gens)-1]
	}
	writeGen++

	writeFile, err := createLogFile(dir, writeGen)
	if err != nil {
		return nil, err
	}
	readFile, err := os.Open(logFileName(dir, writeGen))
	if err != nil {
		writeFile.Close()
		return nil, fmt.Errorf("open new active generation %d for read: %w", writeGen, err)
	}
	readers.put(writeGen, readFile)

	s := &store{
		dir:         dir,
		index:       ix,
		readers:     readers,
		metrics:     newEngineMetrics("kvsd.engine"),
		writer:      newCountingWriter(writeFile, 0),
		writeGen:    writeGen,
		uncompacted: uncompacted,
		refs:        1,
	}
	s.metrics.uncompactedBytes.Update(float64(uncompacted))
	return &KvStore{s: s}, nil
}

// reportUncompacted mirrors the current uncompacted-byte count into the
// live gauge, called after every change to s.uncompacted.
func (s *store) reportUncompacted() {
	s.metrics.uncompactedBytes.Update(float64(atomic.LoadUint64(&s.uncompacted)))
}

func (kv *KvStore) Get(key string) (string, bool, error) {
	kv.s.metrics.gets.Inc(1)
	loc, ok := kv.s.index.get(key)
	if !ok {
		return "", false, nil
	}
	cmd, err := kv.s.readers.read(loc)
	if err != nil {
		return "", false, err
	}
	if cmd.Tag != tagSet {
		return "", false, fmt.Errorf("%w: index pointed at a non-Set record", ErrCorrupt)
	}
	return cmd.Value, true, nil
}

func (kv *KvStore) Set(key, value string) error {
	s := kv.s
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	start, length, err := appendCommand(s.writer, setCommand(key, value))
	if err != nil {
		return fmt.Errorf("append set record: %w", err)
	}
	loc := Location{Generation: s.writeGen, Offset: start, Length: length}
	if old, hadOld := s.index.set(key, loc); hadOld {
		atomic.AddUint64(&s.uncompacted, uint64(old.Length))
		s.reportUncompacted()
	}
	s.metrics.sets.Inc(1)

	return s.maybeCompact()
}

func (kv *KvStore) Remove(key string) error {
	s := kv.s
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	old, hadOld := s.index.get(key)
	if !hadOld {
		return ErrKeyNotFound
	}

	_, length, err := appendCommand(s.writer, removeCommand(key))
	if err != nil {
		return fmt.Errorf("append remove record: %w", err)
	}
	s.index.remove(key)
	atomic.AddUint64(&s.uncompacted, uint64(old.Length)+uint64(length))
	s.reportUncompacted()
	s.metrics.removes.Inc(1)

	return s.maybeCompact()
}

func (kv *KvStore) Stats() (Stats, error) {
	gens, err := listGenerations(kv.s.dir)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Engine:      Builtin,
		Keys:        kv.s.index.len(),
		Uncompacted: atomic.LoadUint64(&kv.s.uncompacted),
		Generations: len(gens),
	}, nil
}

// Clone returns a handle sharing this KvStore's index, writer and reader
// cache; it is safe to use concurrently with the original.
func (kv *KvStore) Clone() Engine {
	atomic.AddInt32(&kv.s.refs, 1)
	return &KvStore{s: kv.s}
}

func (kv *KvStore) Close() error {
	if atomic.AddInt32(&kv.s.refs, -1) > 0 {
		return nil
	}
	kv.s.writerMu.Lock()
	flushErr := kv.s.writer.flushAndSync()
	if err := kv.s.writer.file.Close(); err != nil && flushErr == nil {
		flushErr = err
	}
	kv.s.writerMu.Unlock()
	closeErr := kv.s.readers.closeAll()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// maybeCompact triggers compaction once the uncompacted-byte counter
// crosses the threshold (spec §4.C step 4). Called with writerMu held.
func (s *store) maybeCompact() error {
	if atomic.LoadUint64(&s.uncompacted) < compactionThreshold {
		return nil
	}
	return s.compact()
}

// compact rewrites every live record into a fresh generation file and
// retires every generation strictly older than it (spec §4.C). Called
// with writerMu held, so no concurrent mutation can interleave; readers
// are unaffected since Get never takes writerMu.
func (s *store) compact() error {
	var err error
	s.metrics.compactionTimer.Time(func() { err = s.doCompact() })
	return err
}

func (s *store) doCompact() error {
	compactGen := s.writeGen + 1
	newActiveGen := s.writeGen + 2

	compactWriteFile, err := createLogFile(s.dir, compactGen)
	if err != nil {
		return fmt.Errorf("create compaction generation %d: %w", compactGen, err)
	}
	compactReadFile, err := os.Open(logFileName(s.dir, compactGen))
	if err != nil {
		compactWriteFile.Close()
		return fmt.Errorf("open compaction generation %d for read: %w", compactGen, err)
	}
	compactWriter := newCountingWriter(compactWriteFile, 0)

	for key, loc := range s.index.snapshot() {
		cmd, err := s.readers.read(loc)
		if err != nil {
			compactWriteFile.Close()
			compactReadFile.Close()
			return fmt.Errorf("read live record for %q during compaction: %w", key, err)
		}
		newStart, newLength, err := appendCommand(compactWriter, cmd)
		if err != nil {
			compactWriteFile.Close()
			compactReadFile.Close()
			return fmt.Errorf("copy live record for %q during compaction: %w", key, err)
		}
		newLoc := Location{Generation: compactGen, Offset: newStart, Length: newLength}
		// Per-key atomic retarget (spec §4.C step 2): if a concurrent
		// mutation already moved key past loc, leave it alone, its
		// fresher write already lives in a newer generation.
		s.index.compareAndRetarget(key, loc, newLoc)
	}
	s.readers.put(compactGen, compactReadFile)

	newActiveWriteFile, err := createLogFile(s.dir, newActiveGen)
	if err != nil {
		compactWriteFile.Close()
		return fmt.Errorf("create new active generation %d: %w", newActiveGen, err)
	}
	newActiveReadFile, err := os.Open(logFileName(s.dir, newActiveGen))
	if err != nil {
		newActiveWriteFile.Close()
		compactWriteFile.Close()
		return fmt.Errorf("open new active generation %d for read: %w", newActiveGen, err)
	}
	s.readers.put(newActiveGen, newActiveReadFile)

	retiredWriteFile := s.writer.file
	s.writer = newCountingWriter(newActiveWriteFile, 0)
	s.writeGen = newActiveGen
	_ = retiredWriteFile.Close()
	_ = compactWriteFile.Close()

	gens, err := listGenerations(s.dir)
	if err != nil {
		return err
	}
	for _, gen := range gens {
		if gen < compactGen {
			// The file's directory entry goes away; any handle already
			// cached in readers for this generation keeps working (see
			// readers.go). We deliberately do not evict it from the
			// cache here.
			_ = os.Remove(logFileName(s.dir, gen))
		}
	}

	atomic.StoreUint64(&s.uncompacted, 0)
	s.reportUncompacted()
	s.metrics.compactions.Inc(1)
	return nil
}

func logFileName(dir string, generation uint64) string {
	return filepath.Join(dir, strconv.FormatUint(generation, 10)+logFileExt)
}

func createLogFile(dir string, generation uint64) (*os.File, error) {
	return os.OpenFile(logFileName(dir, generation), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
}

// listGenerations returns every generation number present in dir, sorted
// ascending. Unknown files are ignored (spec §6).
func listGenerations(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}
	var gens []uint64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), logFileExt) {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(e.Name(), logFileExt), 10, 64)
		if err != nil {
			continue
		}
		gens = append(gens, n)
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	return gens, nil
}

// loadLog replays one generation file's records into ix, returning the
// number of newly-uncompacted bytes it introduced, the offset up to which
// records decoded cleanly, and the file's total size.
func loadLog(generation uint64, f *os.File, ix *index) (uncompacted uint64, goodUpTo int64, size int64, err error) {
	stat, err := f.Stat()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("stat generation %d: %w", generation, err)
	}
	size = stat.Size()

	var pos int64
	for {
		payload, next, ok, rerr := readRecordHeaderAndPayload(f, pos)
		if rerr != nil {
			return uncompacted, pos, size, fmt.Errorf("%w: generation %d: %v", ErrCorrupt, generation, rerr)
		}
		if !ok {
			break
		}
		cmd, decErr := decodeCommandBytes(payload)
		if decErr != nil {
			break
		}
		loc := Location{Generation: generation, Offset: pos + recordHeaderSize, Length: next - pos - recordHeaderSize}
		switch cmd.Tag {
		case tagSet:
			if old, had := ix.set(cmd.Key, loc); had {
				uncompacted += uint64(old.Length)
			}
		case tagRemove:
			if old, had := ix.remove(cmd.Key); had {
				uncompacted += uint64(old.Length)
			}
			uncompacted += uint64(loc.Length)
		}
		pos = next
	}
	return uncompacted, pos, size, nil
}
