package main

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tui-server/secure-session/pkg/errs"
	"github.com/tui-server/secure-session/pkg/rvm"
	"github.com/tui-server/secure-session/pkg/session"
	"github.com/tui-server/secure-session/pkg/uuid"
	"github.com/tui-server/secure-session/pkg/vectordb"
)

// Request opcodes for the tiny demo wire protocol carried over an
// authenticated session.Connection. Each request is one opcode byte
// followed by an opcode-specific payload; each response is one status byte
// (0 ok, 1 error, 2 not-modified) followed by the result.
const (
	opInsert byte = iota + 1
	opDelete
	opSearch
	opStats
)

const (
	statusOK byte = iota
	statusError
	statusNotModified
)

var statsPath = []string{"vectordb", "stats"}

// VectorService dispatches requests against a vectordb.DB. Mutating
// requests (Insert, Delete) go through an rvm.Manager write lock keyed by
// the caller's uuid.CallerID, so a caller must have fetched Stats (and so
// hold a confirmed read lock) before it may mutate: exactly the
// optimistic-concurrency contract rvm.Manager is built to enforce. A
// caller that tries to write without first reading gets errs.Conflict; a
// caller whose last known Stats view is already current gets
// statusNotModified instead of a re-fetch.
type VectorService struct {
	db       *vectordb.DB
	versions *rvm.Manager[uuid.CallerID]
}

// NewVectorService wraps db for request dispatch.
func NewVectorService(db *vectordb.DB) *VectorService {
	return &VectorService{db: db, versions: rvm.New[uuid.CallerID]()}
}

// Dispatch handles one request frame from caller and returns the response
// frame.
func (s *VectorService) Dispatch(caller uuid.CallerID, req []byte) []byte {
	if len(req) == 0 {
		return errorResponse(errors.New("empty request"))
	}
	switch req[0] {
	case opStats:
		return s.handleStats(caller)
	case opInsert:
		return s.handleInsert(caller, req[1:])
	case opDelete:
		return s.handleDelete(caller, req[1:])
	case opSearch:
		return s.handleSearch(req[1:])
	default:
		return errorResponse(fmt.Errorf("unknown opcode %d", req[0]))
	}
}

func (s *VectorService) handleStats(caller uuid.CallerID) []byte {
	lock, err := s.versions.GetReadLock(statsPath, caller)
	if err != nil {
		if errs.Is(err, errs.NotModified) {
			return []byte{statusNotModified}
		}
		return errorResponse(err)
	}
	count, walSize, err := s.db.Stats()
	if err != nil {
		lock.Release()
		return errorResponse(err)
	}
	lock.Confirm()
	lock.Release()

	resp := make([]byte, 1+4+8)
	resp[0] = statusOK
	binary.LittleEndian.PutUint32(resp[1:], uint32(count))
	binary.LittleEndian.PutUint64(resp[5:], uint64(walSize))
	return resp
}

func (s *VectorService) handleInsert(caller uuid.CallerID, payload []byte) []byte {
	lock, err := s.versions.GetWriteLock(statsPath, caller)
	if err != nil {
		return errorResponse(err)
	}
	vec := make([]int8, len(payload))
	for i, b := range payload {
		vec[i] = int8(b)
	}
	id, _, err := s.db.Insert(vec)
	if err != nil {
		lock.Release()
		return errorResponse(err)
	}
	lock.Confirm()
	lock.Release()

	resp := make([]byte, 9)
	binary.LittleEndian.PutUint64(resp[1:], id)
	return resp
}

func (s *VectorService) handleDelete(caller uuid.CallerID, payload []byte) []byte {
	if len(payload) != 8 {
		return errorResponse(errors.New("delete payload must be 8 bytes"))
	}
	lock, err := s.versions.GetWriteLock(statsPath, caller)
	if err != nil {
		return errorResponse(err)
	}
	id := binary.LittleEndian.Uint64(payload)
	if _, err := s.db.Delete(id); err != nil {
		lock.Release()
		return errorResponse(err)
	}
	lock.Confirm()
	lock.Release()
	return []byte{statusOK}
}

// handleSearch is read-only against the vector data itself and does not
// contend with the stats version lock.
func (s *VectorService) handleSearch(payload []byte) []byte {
	if len(payload) < 4 {
		return errorResponse(errors.New("search payload too short"))
	}
	k := int(binary.LittleEndian.Uint32(payload))
	query := payload[4:]
	vec := make([]int8, len(query))
	for i, b := range query {
		vec[i] = int8(b)
	}
	ids, err := s.db.SearchTopK(vec, k)
	if err != nil {
		return errorResponse(err)
	}
	resp := make([]byte, 1+8*len(ids))
	for i, id := range ids {
		binary.LittleEndian.PutUint64(resp[1+8*i:], id)
	}
	return resp
}

func errorResponse(err error) []byte {
	msg := err.Error()
	resp := make([]byte, 1+len(msg))
	resp[0] = statusError
	copy(resp[1:], msg)
	return resp
}

// serveConnection drains request frames from conn until it closes.
func serveConnection(svc *VectorService, conn *session.Connection) {
	defer conn.Close()
	for {
		req, err := conn.Receive()
		if err != nil {
			return
		}
		if err := conn.Send(svc.Dispatch(conn.CallerID(), req)); err != nil {
			return
		}
	}
}
