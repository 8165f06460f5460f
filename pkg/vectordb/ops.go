package vectordb

// Insert appends v as a new vector, returning its assigned id and whether
// the WAL has grown past the soft limit (a hint the caller should call
// Compact).
func (db *DB) Insert(v []int8) (id uint64, suggestCompaction bool, err error) {
	if len(v) != db.dimension {
		return 0, false, ErrDimensionMismatch
	}
	err = db.submit(func() error {
		id, suggestCompaction, err = db.doInsert(v)
		return err
	})
	return id, suggestCompaction, err
}

func (db *DB) doInsert(v []int8) (uint64, bool, error) {
	id := db.nextID
	record := encodeWALInsert(id, v)
	preWriteSize := db.walSize

	if _, err := db.wal.Write(record); err != nil {
		db.wal.Truncate(preWriteSize)
		db.wal.Seek(preWriteSize, 0)
		return 0, false, err
	}
	if err := db.wal.Sync(); err != nil {
		db.wal.Truncate(preWriteSize)
		db.wal.Seek(preWriteSize, 0)
		return 0, false, err
	}

	db.nextID++
	db.walSize += int64(len(record))
	stored := make([]int8, len(v))
	copy(stored, v)
	db.walMap[id] = stored

	suggest := db.walSize >= db.opts.SoftWALLimit && !db.isCompacting()
	return id, suggest, nil
}

// Delete removes id from the database (idempotent), returning whether the
// WAL has grown past the soft limit.
func (db *DB) Delete(id uint64) (suggestCompaction bool, err error) {
	err = db.submit(func() error {
		suggestCompaction, err = db.doDelete(id)
		return err
	})
	return suggestCompaction, err
}

func (db *DB) doDelete(id uint64) (bool, error) {
	if _, ok := db.walMap[id]; ok {
		delete(db.walMap, id)
		return db.appendDeleteRecord(id)
	}
	if slot, ok := db.findBaseSlot(id); ok {
		db.tombstones[slot] = struct{}{}
		return db.appendDeleteRecord(id)
	}
	return db.walSize >= db.opts.SoftWALLimit && !db.isCompacting(), nil
}

func (db *DB) appendDeleteRecord(id uint64) (bool, error) {
	record := encodeWALDelete(id)
	preWriteSize := db.walSize

	if _, err := db.wal.Write(record); err != nil {
		db.wal.Truncate(preWriteSize)
		db.wal.Seek(preWriteSize, 0)
		return false, err
	}
	if err := db.wal.Sync(); err != nil {
		db.wal.Truncate(preWriteSize)
		db.wal.Seek(preWriteSize, 0)
		return false, err
	}
	db.walSize += int64(len(record))
	return db.walSize >= db.opts.SoftWALLimit && !db.isCompacting(), nil
}

// SearchTopK returns up to k ids ranked by descending dot-product score
// against q, considering both compacted base vectors and vectors still
// only resident in the WAL.
func (db *DB) SearchTopK(q []int8, k int) ([]uint64, error) {
	if len(q) != db.dimension {
		return nil, ErrDimensionMismatch
	}
	if k <= 0 {
		return nil, nil
	}
	var result []uint64
	err := db.submit(func() error {
		result = db.doSearchTopK(q, k)
		return nil
	})
	return result, err
}

func (db *DB) doSearchTopK(q []int8, k int) []uint64 {
	slotKeeper := newScoreKeeper[int](k)
	for slot := 0; slot < db.baseCount; slot++ {
		if _, tombstoned := db.tombstones[slot]; tombstoned {
			continue
		}
		vec := db.baseVectorAt(slot)
		slotKeeper.Offer(slot, db.kernel.Dot(q, vec))
	}

	idKeeper := newScoreKeeper[uint64](k)
	for _, item := range slotKeeper.Drain() {
		idKeeper.Offer(db.indexIDAt(item.key), item.score)
	}

	for id, vec := range db.walMap {
		idKeeper.Offer(id, db.kernel.Dot(q, vec))
	}

	items := idKeeper.Drain()
	ids := make([]uint64, len(items))
	for i, it := range items {
		ids[i] = it.key
	}
	return ids
}

func (db *DB) baseVectorAt(slot int) []int8 {
	off := HeaderSize + slot*db.dimension
	raw := db.base.data[off : off+db.dimension]
	out := make([]int8, db.dimension)
	for i, b := range raw {
		out[i] = int8(b)
	}
	return out
}

