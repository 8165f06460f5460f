package vectordb

import (
	"encoding/binary"
	"os"
	"sort"
	"sync"

	"github.com/pion/logging"

	"github.com/tui-server/secure-session/pkg/errs"
	"github.com/tui-server/secure-session/pkg/vectordb/simd"
	vuuid "github.com/tui-server/secure-session/pkg/uuid"
)

// defaultSoftWALLimit is the WAL size, in bytes, past which Insert and
// Delete start suggesting compaction.
const defaultSoftWALLimit = 4 * 1024 * 1024

// OnCorruptPolicy selects what Open does when the on-disk files fail
// validation.
type OnCorruptPolicy int

const (
	// RecreateFresh silently re-creates the database with a new id, the
	// literal behavior spec'd for this store.
	RecreateFresh OnCorruptPolicy = iota
	// QuarantineAndHalt returns an error instead of recreating, leaving
	// the files untouched for offline inspection.
	QuarantineAndHalt
)

// Options configures Open.
type Options struct {
	// Path is the base file's path; the index and WAL files are derived
	// as Path+"-index" and Path+"-wal".
	Path string
	// Dimension is the fixed vector width this database stores.
	Dimension int
	// SoftWALLimit is the WAL size past which operations suggest
	// compaction. Defaults to 4 MiB.
	SoftWALLimit int64
	// OnCorrupt selects recovery behavior when validation fails.
	OnCorrupt OnCorruptPolicy
	// LoggerFactory, if set, is used for structured logging.
	LoggerFactory logging.LoggerFactory
}

// DB is a single-writer append-only vector store. All disk and compute
// work, reads included, is serialized onto one internal worker goroutine; the
// exported methods submit work to it and block for the result, giving
// callers a synchronous API while preserving the single-writer invariant.
type DB struct {
	opts      Options
	log       logging.LeveledLogger
	id        vuuid.UUID
	dimension int
	kernel    simd.Kernel

	base  *mmappedFile
	index *mmappedFile
	wal   *os.File

	baseCount  int // number of (slot, id) pairs committed to base+index
	walSize    int64
	nextID     uint64
	tombstones map[int]struct{}
	walMap     map[uint64][]int8

	compactMu  sync.Mutex
	compacting bool

	jobs      chan func()
	closeOnce sync.Once
	closed    chan struct{}
}

// Open loads the database rooted at opts.Path, creating it if absent, and
// reports whether it was freshly created.
func Open(opts Options) (*DB, bool, error) {
	if opts.SoftWALLimit <= 0 {
		opts.SoftWALLimit = defaultSoftWALLimit
	}
	db := &DB{
		opts:       opts,
		dimension:  opts.Dimension,
		kernel:     simd.DetectKernel(),
		tombstones: make(map[int]struct{}),
		walMap:     make(map[uint64][]int8),
		jobs:       make(chan func()),
		closed:     make(chan struct{}),
	}
	if opts.LoggerFactory != nil {
		db.log = opts.LoggerFactory.NewLogger("vectordb")
	}

	created, err := db.openOrCreate()
	if err != nil {
		return nil, false, err
	}
	go db.run()
	return db, created, nil
}

func (db *DB) run() {
	for {
		select {
		case job := <-db.jobs:
			job()
		case <-db.closed:
			return
		}
	}
}

// submit runs fn on the worker goroutine and blocks for its return value.
func (db *DB) submit(fn func() error) error {
	result := make(chan error, 1)
	select {
	case db.jobs <- func() { result <- fn() }:
	case <-db.closed:
		return ErrClosed
	}
	select {
	case err := <-result:
		return err
	case <-db.closed:
		return ErrClosed
	}
}

func (db *DB) paths() (base, index, wal string) {
	return db.opts.Path, db.opts.Path + "-index", db.opts.Path + "-wal"
}

func readHeaderIfExists(path string) (Header, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, false
	}
	defer f.Close()
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return Header{}, false
	}
	hdr, err := decodeHeader(buf)
	if err != nil {
		return Header{}, false
	}
	return hdr, true
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (db *DB) openOrCreate() (created bool, err error) {
	basePath, indexPath, walPath := db.paths()

	baseHdr, baseOK := readHeaderIfExists(basePath)
	indexHdr, indexOK := readHeaderIfExists(indexPath)
	walHdr, walOK := readHeaderIfExists(walPath)

	valid := baseOK && indexOK && walOK &&
		headersAgree(baseHdr, indexHdr) && headersAgree(indexHdr, walHdr) &&
		baseHdr.DataType == DataTypeInt8 && int(baseHdr.Dimension) == db.dimension

	if !valid {
		anyExists := fileExists(basePath) || fileExists(indexPath) || fileExists(walPath)
		if anyExists && db.opts.OnCorrupt == QuarantineAndHalt {
			return false, errs.New(errs.IoError, "vectordb.Open", "on-disk files failed validation under OnCorrupt=QuarantineAndHalt")
		}
		if anyExists && db.log != nil {
			db.log.Warnf("vectordb: %s failed validation, recreating", db.opts.Path)
		}
		return true, db.createFresh()
	}

	db.id = baseHdr.ID
	return false, db.loadExisting()
}

func (db *DB) createFresh() error {
	db.id = vuuid.New()
	hdr := Header{ID: db.id, DataType: DataTypeInt8, Dimension: uint32(db.dimension)}
	headerBytes := encodeHeader(hdr)

	basePath, indexPath, walPath := db.paths()
	if err := os.WriteFile(basePath, headerBytes, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(indexPath, headerBytes, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(walPath, headerBytes, 0o644); err != nil {
		return err
	}

	base, err := openMmapped(basePath, HeaderSize)
	if err != nil {
		return err
	}
	index, err := openMmapped(indexPath, HeaderSize)
	if err != nil {
		base.close()
		return err
	}
	wal, err := os.OpenFile(walPath, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		base.close()
		index.close()
		return err
	}

	db.base = base
	db.index = index
	db.wal = wal
	db.baseCount = 0
	db.walSize = HeaderSize
	db.nextID = 1
	return nil
}

func (db *DB) loadExisting() error {
	basePath, indexPath, walPath := db.paths()

	baseInfo, err := os.Stat(basePath)
	if err != nil {
		return err
	}
	indexInfo, err := os.Stat(indexPath)
	if err != nil {
		return err
	}
	base, err := openMmapped(basePath, int(baseInfo.Size()))
	if err != nil {
		return err
	}
	index, err := openMmapped(indexPath, int(indexInfo.Size()))
	if err != nil {
		base.close()
		return err
	}

	db.base = base
	db.index = index
	db.baseCount = (int(indexInfo.Size()) - HeaderSize) / 8 // every mapped slot on disk is already committed

	walBytes, err := os.ReadFile(walPath)
	if err != nil {
		base.close()
		index.close()
		return err
	}
	records, err := decodeWALRecords(walBytes[HeaderSize:], db.dimension)
	if err != nil {
		base.close()
		index.close()
		return err
	}

	var maxID uint64
	for slot := 0; slot < db.baseCount; slot++ {
		id := db.indexIDAt(slot)
		if id > maxID {
			maxID = id
		}
	}
	for _, rec := range records {
		switch rec.Op {
		case opInsert:
			db.walMap[rec.ID] = rec.Vector
		case opDelete:
			if _, ok := db.walMap[rec.ID]; ok {
				delete(db.walMap, rec.ID)
			} else if slot, ok := db.findBaseSlot(rec.ID); ok {
				db.tombstones[slot] = struct{}{}
			}
		}
		if rec.ID > maxID {
			maxID = rec.ID
		}
	}
	db.nextID = maxID + 1

	wal, err := os.OpenFile(walPath, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		base.close()
		index.close()
		return err
	}
	db.wal = wal
	db.walSize = int64(len(walBytes))
	return nil
}

func (db *DB) indexIDAt(slot int) uint64 {
	off := HeaderSize + slot*8
	return binary.LittleEndian.Uint64(db.index.data[off : off+8])
}

// findBaseSlot binary-searches the index for id, which the load-time and
// in-memory invariants guarantee is strictly increasing on disk.
func (db *DB) findBaseSlot(id uint64) (int, bool) {
	slot := sort.Search(db.baseCount, func(i int) bool {
		return db.indexIDAt(i) >= id
	})
	if slot < db.baseCount && db.indexIDAt(slot) == id {
		return slot, true
	}
	return 0, false
}

// Close stops the worker goroutine and releases all file handles. It is
// safe to call more than once.
func (db *DB) Close() error {
	var closeErr error
	db.closeOnce.Do(func() {
		close(db.closed)
		if db.base != nil {
			if err := db.base.close(); err != nil {
				closeErr = err
			}
		}
		if db.index != nil {
			if err := db.index.close(); err != nil && closeErr == nil {
				closeErr = err
			}
		}
		if db.wal != nil {
			if err := db.wal.Close(); err != nil && closeErr == nil {
				closeErr = err
			}
		}
	})
	return closeErr
}

// ID returns the database's identifier.
func (db *DB) ID() vuuid.UUID { return db.id }

// Dimension returns the configured vector width.
func (db *DB) Dimension() int { return db.dimension }

// Stats reports the live vector count (base entries minus tombstones, plus
// WAL-resident inserts) and the current WAL size in bytes.
func (db *DB) Stats() (liveCount int, walSize int64, err error) {
	err = db.submit(func() error {
		liveCount = db.baseCount - len(db.tombstones) + len(db.walMap)
		walSize = db.walSize
		return nil
	})
	return liveCount, walSize, err
}
