package vectordb

import (
	"testing"

	vuuid "github.com/tui-server/secure-session/pkg/uuid"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{ID: vuuid.New(), DataType: DataTypeInt8, Dimension: 128}
	buf := encodeHeader(h)
	if len(buf) != HeaderSize {
		t.Fatalf("encoded header length = %d, want %d", len(buf), HeaderSize)
	}
	got, err := decodeHeader(buf)
	if err != nil {
		t.Fatalf("decodeHeader: %v", err)
	}
	if got != h {
		t.Fatalf("got = %+v, want %+v", got, h)
	}
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	buf := encodeHeader(Header{ID: vuuid.New(), DataType: DataTypeInt8, Dimension: 8})
	buf[0] ^= 0xff
	if _, err := decodeHeader(buf); err == nil {
		t.Fatal("expected an error for corrupted magic")
	}
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	if _, err := decodeHeader(make([]byte, HeaderSize-1)); err == nil {
		t.Fatal("expected an error for a short buffer")
	}
}

func TestHeadersAgree(t *testing.T) {
	id := vuuid.New()
	a := Header{ID: id, DataType: DataTypeInt8, Dimension: 16}
	b := Header{ID: id, DataType: DataTypeInt8, Dimension: 16}
	if !headersAgree(a, b) {
		t.Fatal("identical headers should agree")
	}
	b.Dimension = 32
	if headersAgree(a, b) {
		t.Fatal("headers with different dimensions should not agree")
	}
}

func TestWALRecordRoundTrip(t *testing.T) {
	vec := []int8{1, -2, 3, -4}
	insert := encodeWALInsert(7, vec)
	del := encodeWALDelete(9)
	body := append(insert, del...)

	records, err := decodeWALRecords(body, len(vec))
	if err != nil {
		t.Fatalf("decodeWALRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Op != opInsert || records[0].ID != 7 {
		t.Fatalf("record 0 = %+v", records[0])
	}
	for i, v := range vec {
		if records[0].Vector[i] != v {
			t.Fatalf("record 0 vector[%d] = %d, want %d", i, records[0].Vector[i], v)
		}
	}
	if records[1].Op != opDelete || records[1].ID != 9 {
		t.Fatalf("record 1 = %+v", records[1])
	}
}

func TestDecodeWALRecordsRejectsTruncation(t *testing.T) {
	insert := encodeWALInsert(1, []int8{1, 2, 3, 4})
	if _, err := decodeWALRecords(insert[:len(insert)-1], 4); err == nil {
		t.Fatal("expected an error for a truncated vector payload")
	}
	if _, err := decodeWALRecords(insert[:3], 4); err == nil {
		t.Fatal("expected an error for a truncated record header")
	}
}
