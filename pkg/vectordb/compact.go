package vectordb

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
)

func (db *DB) isCompacting() bool {
	db.compactMu.Lock()
	defer db.compactMu.Unlock()
	return db.compacting
}

// Compact rewrites the base, index, and WAL files to drop tombstoned
// vectors and fold WAL-only inserts into the base file, then atomically
// swaps the rewritten files in. It is a no-op, returning
// ErrCompactionInProgress, if a compaction is already running.
func (db *DB) Compact() error {
	db.compactMu.Lock()
	if db.compacting {
		db.compactMu.Unlock()
		return ErrCompactionInProgress
	}
	db.compacting = true
	db.compactMu.Unlock()
	defer func() {
		db.compactMu.Lock()
		db.compacting = false
		db.compactMu.Unlock()
	}()

	return db.submit(db.doCompact)
}

func (db *DB) doCompact() error {
	basePath, indexPath, walPath := db.paths()
	newBasePath := basePath + "-new"
	newIndexPath := indexPath + "-new"
	newWALPath := walPath + "-new"

	liveIDs := make([]uint64, 0, db.baseCount+len(db.walMap))
	liveVecs := make([][]int8, 0, cap(liveIDs))
	for slot := 0; slot < db.baseCount; slot++ {
		if _, tombstoned := db.tombstones[slot]; tombstoned {
			continue
		}
		liveIDs = append(liveIDs, db.indexIDAt(slot))
		liveVecs = append(liveVecs, db.baseVectorAt(slot))
	}

	walIDs := make([]uint64, 0, len(db.walMap))
	for id := range db.walMap {
		walIDs = append(walIDs, id)
	}
	sort.Slice(walIDs, func(i, j int) bool { return walIDs[i] < walIDs[j] })
	for _, id := range walIDs {
		liveIDs = append(liveIDs, id)
		liveVecs = append(liveVecs, db.walMap[id])
	}

	n := len(liveIDs)
	hdr := Header{ID: db.id, DataType: DataTypeInt8, Dimension: uint32(db.dimension)}
	headerBytes := encodeHeader(hdr)

	baseBuf := make([]byte, HeaderSize+n*db.dimension)
	copy(baseBuf, headerBytes)
	indexBuf := make([]byte, HeaderSize+n*8)
	copy(indexBuf, headerBytes)
	for i, id := range liveIDs {
		vec := liveVecs[i]
		baseOff := HeaderSize + i*db.dimension
		for j, v := range vec {
			baseBuf[baseOff+j] = byte(v)
		}
		indexOff := HeaderSize + i*8
		binary.LittleEndian.PutUint64(indexBuf[indexOff:indexOff+8], id)
	}
	walBuf := append([]byte(nil), headerBytes...)

	if err := writeAndSync(newBasePath, baseBuf); err != nil {
		return err
	}
	if err := writeAndSync(newIndexPath, indexBuf); err != nil {
		return err
	}
	if err := writeAndSync(newWALPath, walBuf); err != nil {
		return err
	}

	if err := db.base.close(); err != nil {
		return err
	}
	if err := db.index.close(); err != nil {
		return err
	}
	if err := db.wal.Close(); err != nil {
		return err
	}

	if err := os.Rename(newBasePath, basePath); err != nil {
		return err
	}
	if err := os.Rename(newIndexPath, indexPath); err != nil {
		return err
	}
	if err := os.Rename(newWALPath, walPath); err != nil {
		return err
	}
	syncDir(filepath.Dir(basePath))

	base, err := openMmapped(basePath, len(baseBuf))
	if err != nil {
		return err
	}
	index, err := openMmapped(indexPath, len(indexBuf))
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
	db.baseCount = n
	db.walSize = int64(len(walBuf))
	db.tombstones = make(map[int]struct{})
	db.walMap = make(map[uint64][]int8)
	return nil
}

func writeAndSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func syncDir(path string) {
	d, err := os.Open(path)
	if err != nil {
		return
	}
	defer d.Close()
	d.Sync()
}
