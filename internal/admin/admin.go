// Package admin implements a small read-only TCP introspection surface: a
// line-oriented protocol answering TOB (top of book) and SNAP (depth
// snapshot) queries against the live registry without ever creating an
// engine as a side effect of a query.
//
// Grounded in the teacher's internal/net/server.go Run/handleConnection
// listener loop (tomb-supervised accept loop, one goroutine per
// connection, deadline-bounded reads) but stripped of that file's
// persistent client-session bookkeeping, which this request/response
// protocol has no use for, and of its dependency on the nonexistent
// internal/utils.WorkerPool.
package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/saiputravu/matchd/internal/registry"
	"github.com/saiputravu/matchd/internal/transport"
)

const (
	defaultReadTimeout  = 5 * time.Second
	defaultSnapDepth    = 10
	maxSnapDepth        = 1000
)

// Server is the admin introspection listener. It never mutates engine
// state: every query resolves through Registry.Lookup, which returns
// "not found" for a symbol with no live engine rather than creating one.
type Server struct {
	addr     string
	registry *registry.Registry
	t        *tomb.Tomb
}

// New binds the admin surface to addr (e.g. ":7777"); an empty addr means
// the caller should not start the server at all.
func New(addr string, reg *registry.Registry) *Server {
	return &Server{addr: addr, registry: reg, t: new(tomb.Tomb)}
}

// Run accepts connections until ctx is cancelled. It blocks until the
// listener is closed.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("admin: listen: %w", err)
	}
	defer listener.Close()

	s.t.Go(func() error {
		<-s.t.Dying()
		return listener.Close()
	})

	go func() {
		<-ctx.Done()
		s.t.Kill(nil)
	}()

	log.Info().Str("addr", s.addr).Msg("admin surface listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.t.Dying():
				return nil
			default:
				log.Error().Err(err).Msg("admin: accept error")
				continue
			}
		}
		s.t.Go(func() error {
			s.handleConnection(conn)
			return nil
		})
	}
}

// Shutdown stops the listener and waits for in-flight connections to
// finish.
func (s *Server) Shutdown() error {
	s.t.Kill(nil)
	return s.t.Wait()
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	// sessionID correlates every log line for this connection, standing in
	// for the teacher's per-order client UUID now that orders no longer
	// carry one (order identity is the engine-assigned sequential ID).
	sessionID := uuid.New().String()
	log.Debug().Str("session", sessionID).Str("remote", conn.RemoteAddr().String()).Msg("admin connection opened")

	if err := conn.SetDeadline(time.Now().Add(defaultReadTimeout)); err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("admin: set deadline")
		return
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		response := s.dispatch(line)
		if _, err := conn.Write(append(response, '\n')); err != nil {
			log.Error().Err(err).Str("session", sessionID).Msg("admin: write response")
			return
		}
		if err := conn.SetDeadline(time.Now().Add(defaultReadTimeout)); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(line string) []byte {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return errorResponse("empty request")
	}

	switch strings.ToUpper(fields[0]) {
	case "TOB":
		if len(fields) != 2 {
			return errorResponse("usage: TOB <symbol>")
		}
		return s.handleTOB(fields[1])
	case "SNAP":
		if len(fields) < 2 || len(fields) > 3 {
			return errorResponse("usage: SNAP <symbol> [depth]")
		}
		depth := defaultSnapDepth
		if len(fields) == 3 {
			d, err := strconv.Atoi(fields[2])
			if err != nil || d < 0 {
				return errorResponse("invalid depth")
			}
			if d > maxSnapDepth {
				d = maxSnapDepth
			}
			depth = d
		}
		return s.handleSnap(fields[1], depth)
	default:
		return errorResponse("unknown query type: " + fields[0])
	}
}

func (s *Server) handleTOB(symbol string) []byte {
	eng, ok := s.registry.Lookup(symbol)
	if !ok {
		return errorResponse("unknown symbol: " + symbol)
	}
	tob, err := eng.TopOfBook()
	if err != nil {
		return errorResponse(err.Error())
	}
	payload := transport.NewBookPayload(
		tob.BidOK, transport.TicksToPrice(tob.BidPrice), tob.BidQty,
		tob.AskOK, transport.TicksToPrice(tob.AskPrice), tob.AskQty,
	)
	return mustJSON(payload)
}

func (s *Server) handleSnap(symbol string, depth int) []byte {
	eng, ok := s.registry.Lookup(symbol)
	if !ok {
		return errorResponse("unknown symbol: " + symbol)
	}
	snap, err := eng.Snapshot(depth)
	if err != nil {
		return errorResponse(err.Error())
	}
	return mustJSON(snap)
}

func errorResponse(msg string) []byte {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return errorResponse("encode failure: " + err.Error())
	}
	return b
}
