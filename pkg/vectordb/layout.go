// Package vectordb implements an embedded, append-only, single-writer
// vector similarity store: three sibling files (base vectors, an id index,
// and a write-ahead log) sharing a common 4096-byte header.
package vectordb

import (
	"bytes"
	"encoding/binary"

	"github.com/tui-server/secure-session/pkg/errs"
	vuuid "github.com/tui-server/secure-session/pkg/uuid"
)

// HeaderSize is the size, in bytes, of the header shared by the base,
// index, and WAL files.
const HeaderSize = 4096

const (
	magicOffset     = 0
	magicSize       = 16
	uuidOffset      = 16
	uuidFieldSize   = 48
	dataTypeOffset  = 64
	dimensionOffset = 68
	headerBodyEnd   = 72
)

// Magic identifies a vectordb file.
var Magic = [magicSize]byte{
	0xf0, 0x80, 0x35, 0x28, 0xe0, 0x31, 0xe3, 0x24,
	0x88, 0x1c, 0x7e, 0x76, 0x48, 0x1e, 0xf7, 0xac,
}

// DataType is the on-disk vector element type tag.
type DataType uint32

// DataTypeInt8 is the only data type this package supports.
const DataTypeInt8 DataType = 1

// Header is the shared 4096-byte header of the base, index, and WAL files.
type Header struct {
	ID        vuuid.UUID
	DataType  DataType
	Dimension uint32
}

func encodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[magicOffset:magicOffset+magicSize], Magic[:])
	uuidStr := h.ID.String()
	copy(buf[uuidOffset:uuidOffset+uuidFieldSize], uuidStr)
	binary.LittleEndian.PutUint32(buf[dataTypeOffset:], uint32(h.DataType))
	binary.LittleEndian.PutUint32(buf[dimensionOffset:], h.Dimension)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, errs.New(errs.Malformed, "vectordb.decodeHeader", "short header")
	}
	if !bytes.Equal(buf[magicOffset:magicOffset+magicSize], Magic[:]) {
		return Header{}, errs.New(errs.Malformed, "vectordb.decodeHeader", "bad magic")
	}
	uuidBytes := bytes.TrimRight(buf[uuidOffset:uuidOffset+uuidFieldSize], "\x00")
	id, err := vuuid.Parse(string(uuidBytes))
	if err != nil {
		return Header{}, errs.Wrap(errs.Malformed, "vectordb.decodeHeader", err)
	}
	dt := DataType(binary.LittleEndian.Uint32(buf[dataTypeOffset:]))
	dim := binary.LittleEndian.Uint32(buf[dimensionOffset:])
	return Header{ID: id, DataType: dt, Dimension: dim}, nil
}

// headersAgree reports whether two headers describe the same logical
// database (same id, data type, and dimension), as required of the base,
// index, and WAL files of one database.
func headersAgree(a, b Header) bool {
	return a.ID == b.ID && a.DataType == b.DataType && a.Dimension == b.Dimension
}

// WAL operation tags.
const (
	opDelete uint32 = 1
	opInsert uint32 = 2
)

// walRecordHeaderSize is the encoded size of a WAL record before any
// trailing vector payload: op(u32 LE) || id(u64 LE).
const walRecordHeaderSize = 4 + 8

func encodeWALInsert(id uint64, vector []int8) []byte {
	buf := make([]byte, walRecordHeaderSize+len(vector))
	binary.LittleEndian.PutUint32(buf[0:4], opInsert)
	binary.LittleEndian.PutUint64(buf[4:12], id)
	for i, v := range vector {
		buf[walRecordHeaderSize+i] = byte(v)
	}
	return buf
}

func encodeWALDelete(id uint64) []byte {
	buf := make([]byte, walRecordHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], opDelete)
	binary.LittleEndian.PutUint64(buf[4:12], id)
	return buf
}

// walRecord is one decoded entry from a WAL replay pass.
type walRecord struct {
	Op     uint32
	ID     uint64
	Vector []int8 // only set when Op == opInsert
}

// decodeWALRecords parses every record in a WAL body (the bytes following
// the shared header) given the database's vector dimension.
func decodeWALRecords(body []byte, dimension int) ([]walRecord, error) {
	var records []walRecord
	offset := 0
	for offset < len(body) {
		if offset+walRecordHeaderSize > len(body) {
			return nil, errs.New(errs.Malformed, "vectordb.decodeWALRecords", "truncated record header")
		}
		op := binary.LittleEndian.Uint32(body[offset : offset+4])
		id := binary.LittleEndian.Uint64(body[offset+4 : offset+12])
		offset += walRecordHeaderSize

		rec := walRecord{Op: op, ID: id}
		switch op {
		case opInsert:
			if offset+dimension > len(body) {
				return nil, errs.New(errs.Malformed, "vectordb.decodeWALRecords", "truncated vector payload")
			}
			vec := make([]int8, dimension)
			for i := 0; i < dimension; i++ {
				vec[i] = int8(body[offset+i])
			}
			rec.Vector = vec
			offset += dimension
		case opDelete:
			// no payload
		default:
			return nil, errs.New(errs.Malformed, "vectordb.decodeWALRecords", "unknown WAL op")
		}
		records = append(records, rec)
	}
	return records, nil
}
