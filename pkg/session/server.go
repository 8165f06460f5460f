package session

import (
	"context"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/tui-server/secure-session/pkg/bruteforce"
	"github.com/tui-server/secure-session/pkg/errs"
	"github.com/tui-server/secure-session/pkg/fakecred"
	"github.com/tui-server/secure-session/pkg/transport"
	"github.com/tui-server/secure-session/pkg/uuid"
)

// defaultHandshakeTimeout is how long a connection has to complete its
// handshake and protocol negotiation before the server closes it.
const defaultHandshakeTimeout = 10 * time.Second

// ticketExpiry is how long a resumption ticket remains valid after the
// connection it was issued to closes, if it is not consumed first.
const ticketExpiry = 5 * time.Minute

// CredentialLookup resolves a username to its stored SPAKE2+ verifier
// record: the Argon2id salt, the (w0, L) pair, and the account's user_id.
// found is false for a username with no account, in which case the caller
// substitutes a fakecred.Credential rather than rejecting the handshake
// outright.
type CredentialLookup func(ctx context.Context, username string) (salt, w0, l []byte, userID uuid.UUID, found bool, err error)

// Config configures a Server.
type Config struct {
	Transport         transport.Listener
	CredentialLookup  CredentialLookup
	FakeCredGenerator *fakecred.Generator
	BruteForceLimiter *bruteforce.Limiter
	LoggerFactory     logging.LoggerFactory
	HandshakeContext  []byte

	// HandshakeTimeout bounds how long a connection may take to complete
	// its handshake and protocol negotiation. Zero defaults to 10s.
	HandshakeTimeout time.Duration

	// OnConnection, if set, is invoked in its own goroutine with every
	// Connection as soon as its handshake completes and it is registered.
	// It is the host's hook for driving application traffic over the
	// connection; Server itself only establishes and tracks connections.
	OnConnection func(*Connection)
}

// ticketRecord binds a resumption ticket ID to the PSK negotiated for it,
// the username and user_id it was issued to, for one later ECDHE+PSK
// resumption.
type ticketRecord struct {
	username string
	userID   uuid.UUID
	psk      []byte
}

// Server accepts connections, runs the SPAKE2+ login or ECDHE+PSK
// resumption handshake on each, and hands the caller a ready Connection.
// It enforces at most one live Connection per user_id.
type Server struct {
	cfg Config
	log logging.LeveledLogger

	mu           sync.Mutex
	connections  map[uuid.CallerID]*Connection
	connByUser   map[uuid.UUID]uuid.CallerID
	tickets      map[[16]byte]ticketRecord
	connTicket   map[uuid.CallerID][16]byte
	ticketTimers map[[16]byte]*time.Timer
	closed       bool
}

// NewServer creates a Server from cfg. cfg.Transport, cfg.CredentialLookup,
// cfg.FakeCredGenerator, and cfg.BruteForceLimiter must be non-nil.
func NewServer(cfg Config) *Server {
	var log logging.LeveledLogger
	if cfg.LoggerFactory != nil {
		log = cfg.LoggerFactory.NewLogger("session")
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Server{
		cfg:          cfg,
		log:          log,
		connections:  make(map[uuid.CallerID]*Connection),
		connByUser:   make(map[uuid.UUID]uuid.CallerID),
		tickets:      make(map[[16]byte]ticketRecord),
		connTicket:   make(map[uuid.CallerID][16]byte),
		ticketTimers: make(map[[16]byte]*time.Timer),
	}
}

// Serve accepts connections until ctx is canceled or the listener errors.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.cfg.Transport.Close()
	}()

	for {
		conn, err := s.cfg.Transport.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

// Close closes every live Connection and cancels every pending ticket
// expiry timer before returning.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*Connection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.connections = make(map[uuid.CallerID]*Connection)
	s.connByUser = make(map[uuid.UUID]uuid.CallerID)
	s.connTicket = make(map[uuid.CallerID][16]byte)
	for _, t := range s.ticketTimers {
		t.Stop()
	}
	s.ticketTimers = make(map[[16]byte]*time.Timer)
	s.tickets = make(map[[16]byte]ticketRecord)
	s.mu.Unlock()

	var firstErr error
	for _, c := range conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.cfg.Transport.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Connections returns the currently live connection count.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// Lookup returns the live Connection for a CallerID, if any.
func (s *Server) Lookup(id uuid.CallerID) (*Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	return c, ok
}

func (s *Server) handleConn(ctx context.Context, conn transport.Conn) {
	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	type outcome struct {
		conn *Connection
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		c, err := s.negotiateAndRegister(ctx, conn)
		done <- outcome{c, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if s.log != nil {
				s.log.Warnf("handshake failed: %v", o.err)
			}
			conn.Close()
			return
		}
		if s.cfg.OnConnection != nil {
			go s.cfg.OnConnection(o.conn)
		}
	case <-hctx.Done():
		conn.Close()
		if s.log != nil {
			s.log.Warnf("handshake failed: %v", errs.New(errs.HandshakeTimeout, "session.handleConn", "handshake did not complete before deadline"))
		}
		<-done
	}
}

// negotiateAndRegister drives one connection through authentication, the
// post-handshake protocol negotiation exchange, and registration. It
// returns the ready Connection on success.
func (s *Server) negotiateAndRegister(ctx context.Context, conn transport.Conn) (*Connection, error) {
	hello, err := ReadClientHello(conn)
	if err != nil {
		return nil, err
	}

	var (
		trafficKey     []byte
		username       string
		userID         uuid.UUID
		wasUnderAttack bool
	)
	switch hello.Step {
	case stepSpake2pRetrieveSalt:
		username = hello.Username
		trafficKey, userID, wasUnderAttack, err = s.runLogin(ctx, conn, hello)
	case stepEcdhepskStart:
		username, userID, trafficKey, err = s.runResume(conn, hello)
	default:
		err = ErrUnknownProtocol
	}
	if err != nil {
		return nil, err
	}

	turnOffEncryption, newTicketID, psk, err := serverNegotiate(conn, trafficKey, wasUnderAttack)
	if err != nil {
		return nil, err
	}

	callerID := uuid.CallerID{UserID: userID, ConnectionID: uuid.New()}

	s.mu.Lock()
	if userID != uuid.Nil {
		if priorID, ok := s.connByUser[userID]; ok {
			prior := s.connections[priorID]
			delete(s.connections, priorID)
			delete(s.connByUser, userID)
			delete(s.connTicket, priorID)
			s.mu.Unlock()
			if prior != nil {
				prior.Close()
			}
			s.mu.Lock()
		}
	}
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrConnectionClosed
	}

	session, err := newConnection(callerID, conn, trafficKey, turnOffEncryption, s.deregister)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.connections[callerID] = session
	s.connByUser[userID] = callerID
	s.tickets[newTicketID] = ticketRecord{username: username, userID: userID, psk: psk}
	s.connTicket[callerID] = newTicketID
	s.mu.Unlock()

	return session, nil
}

// runLogin resolves username's credential (real, fake, or salt-spliced
// fake, per the brute-force limiter's state) and runs the remainder of the
// SPAKE2+ exchange. It returns the negotiation traffic key, the real
// user_id (the zero UUID unless the login used real, unblocked
// credentials), and whether the username had been under active brute-force
// blocking.
func (s *Server) runLogin(ctx context.Context, conn transport.Conn, hello ClientHello) ([]byte, uuid.UUID, bool, error) {
	username := hello.Username

	salt, w0, l, userID, real, err := s.resolveCredential(ctx, username)
	if err != nil {
		return nil, uuid.UUID{}, false, err
	}

	if err := ServerSendSalt(conn, salt); err != nil {
		return nil, uuid.UUID{}, false, err
	}

	ke, err := ServerContinueSpake2p(conn, s.cfg.HandshakeContext, username, w0, l)
	if err != nil {
		if real && s.cfg.BruteForceLimiter != nil {
			s.cfg.BruteForceLimiter.LogInvalidLogin(username)
		}
		return nil, uuid.UUID{}, false, err
	}

	wasUnderAttack := false
	if real && s.cfg.BruteForceLimiter != nil {
		wasUnderAttack = s.cfg.BruteForceLimiter.LogValidLogin(username)
	}

	trafficKey, err := deriveTrafficKey(ke)
	if err != nil {
		return nil, uuid.UUID{}, false, err
	}
	return trafficKey, userID, wasUnderAttack, nil
}

// resolveCredential implements spec's masking rules: an unknown username
// gets a fully fake credential; a known but currently-blocked username gets
// a fake (w0, L) with its real salt spliced in, so the client's Argon2id
// work factor - and therefore timing - matches a real attempt; only a
// known, unblocked username yields its real credential and user_id.
func (s *Server) resolveCredential(ctx context.Context, username string) (salt, w0, l []byte, userID uuid.UUID, real bool, err error) {
	realSalt, realW0, realL, realUserID, found, lookupErr := s.cfg.CredentialLookup(ctx, username)
	if lookupErr != nil {
		return nil, nil, nil, uuid.UUID{}, false, lookupErr
	}

	if !found {
		cred, cerr := s.cfg.FakeCredGenerator.FakeCredential(username)
		if cerr != nil {
			return nil, nil, nil, uuid.UUID{}, false, cerr
		}
		return cred.Salt, cred.W0, cred.L, uuid.UUID{}, false, nil
	}

	if s.cfg.BruteForceLimiter != nil && s.cfg.BruteForceLimiter.IsBlocked(username) {
		cred, cerr := s.cfg.FakeCredGenerator.SpliceRealSalt(username, realSalt)
		if cerr != nil {
			return nil, nil, nil, uuid.UUID{}, false, cerr
		}
		return cred.Salt, cred.W0, cred.L, uuid.UUID{}, false, nil
	}

	return realSalt, realW0, realL, realUserID, true, nil
}

// runResume consumes the resumption ticket named in hello and completes the
// ECDHE+PSK exchange, returning the caller_id.user_id recorded when the
// ticket was issued.
func (s *Server) runResume(conn transport.Conn, hello ClientHello) (string, uuid.UUID, []byte, error) {
	s.mu.Lock()
	rec, ok := s.tickets[hello.TicketID]
	delete(s.tickets, hello.TicketID)
	if timer, ok2 := s.ticketTimers[hello.TicketID]; ok2 {
		timer.Stop()
		delete(s.ticketTimers, hello.TicketID)
	}
	s.mu.Unlock()
	if !ok {
		return "", uuid.UUID{}, nil, ErrUnknownTicket
	}

	trafficKey, err := ServerContinueResume(conn, hello.TicketID, rec.psk, hello.ClientShare)
	if err != nil {
		return rec.username, uuid.UUID{}, nil, err
	}
	return rec.username, rec.userID, trafficKey, nil
}

// deregister removes a Connection from the registry and, if it still holds
// a pending (un-consumed) resumption ticket, arms that ticket's expiry
// timer.
func (s *Server) deregister(id uuid.CallerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.connections, id)
	if s.connByUser[id.UserID] == id {
		delete(s.connByUser, id.UserID)
	}

	ticketID, ok := s.connTicket[id]
	delete(s.connTicket, id)
	if !ok || s.closed {
		return
	}
	if _, stillPending := s.tickets[ticketID]; stillPending {
		s.ticketTimers[ticketID] = time.AfterFunc(ticketExpiry, func() { s.expireTicket(ticketID) })
	}
}

func (s *Server) expireTicket(ticketID [16]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickets, ticketID)
	delete(s.ticketTimers, ticketID)
}
