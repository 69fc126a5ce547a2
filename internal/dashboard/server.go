// Package dashboard streams watch events to WebSocket clients.
//
// Every dispatched lifecycle event is sent to connected clients as an event
// message followed by a stats message. New clients first receive the
// current stats. /health and /metrics serve monitoring.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/steveyegge/treewatch/internal/events"
)

// MessageType tags a dashboard message.
type MessageType string

const (
	// MessageTypeEvent carries one lifecycle event
	MessageTypeEvent MessageType = "event"

	// MessageTypeStats carries event totals and the watcher's size
	MessageTypeStats MessageType = "stats"
)

// backlog bounds the messages waiting for the send loop. Beyond it messages
// are dropped rather than stalling the dispatch goroutine.
const backlog = 256

// writeTimeout bounds a single client write.
const writeTimeout = 5 * time.Second

// Message is the envelope written to clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// StatsData contains event totals and the watcher's current size
type StatsData struct {
	Total  int            `json:"total"`
	ByKind map[string]int `json:"by_kind"`
	Nodes  int            `json:"nodes"`
	Queued int            `json:"queued"`
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	// Logger for connection activity (default: log.Default())
	Logger *log.Logger

	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer

	// Health adds a "watcher" field to /health when set
	Health func() any
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Logger: log.Default(),
	}
}

// Server fans dashboard messages out to WebSocket clients.
type Server struct {
	addr     string
	gatherer prometheus.Gatherer
	health   func() any
	logger   *log.Logger

	listener net.Listener
	http     *http.Server

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
	current func() StatsData

	outbox chan Message
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer returns a server that is not yet listening.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:     fmt.Sprintf(":%d", config.Port),
		gatherer: config.Gatherer,
		health:   config.Health,
		logger:   logger,
		clients:  make(map[*websocket.Conn]struct{}),
		outbox:   make(chan Message, backlog),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetStatsSource supplies the stats sent to each client when it connects.
func (s *Server) SetStatsSource(fn func() StatsData) {
	s.mu.Lock()
	s.current = fn
	s.mu.Unlock()
}

// Start listens and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", s.handleIndex)

	s.http = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.sendLoop()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("listening on %s", ln.Addr())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("serve: %v", err)
		}
	}()
	return nil
}

// Stop disconnects every client, shuts the HTTP server down and waits for
// the send loop.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
	}
	clear(s.clients)
	s.mu.Unlock()

	var err error
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if shutdownErr := s.http.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("server shutdown error: %w", shutdownErr)
		}
	}
	s.wg.Wait()
	s.logger.Printf("stopped")
	return err
}

// Broadcast queues msg for every connected client. It never blocks; when the
// backlog is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case <-s.ctx.Done():
	case s.outbox <- msg:
	default:
		s.logger.Printf("backlog full, dropped %s message", msg.Type)
	}
}

// BroadcastEvent wraps ev in an event message and broadcasts it.
func (s *Server) BroadcastEvent(ev events.Event) {
	s.broadcastData(MessageTypeEvent, ev)
}

// BroadcastStats broadcasts a stats message.
func (s *Server) BroadcastStats(stats StatsData) {
	s.broadcastData(MessageTypeStats, stats)
}

func (s *Server) broadcastData(typ MessageType, v any) {
	msg, err := newMessage(typ, v)
	if err != nil {
		s.logger.Printf("encode %s: %v", typ, err)
		return
	}
	s.Broadcast(msg)
}

func newMessage(typ MessageType, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Timestamp: time.Now(), Data: data}, nil
}

func (s *Server) sendLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.outbox:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("encode message: %v", err)
				continue
			}
			for _, conn := range s.snapshotClients() {
				if err := s.write(conn, data); err != nil {
					s.logger.Printf("write: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// snapshotClients copies the client set so writes happen outside the lock.
func (s *Server) snapshotClients() []*websocket.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	return conns
}

func (s *Server) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("upgrade: %v", err)
		return
	}

	// The welcome is written before the client joins the broadcast set, and
	// under the lock so no broadcast overtakes it.
	s.mu.Lock()
	err = s.welcome(conn)
	if err == nil {
		s.clients[conn] = struct{}{}
	}
	n := len(s.clients)
	s.mu.Unlock()
	if err != nil {
		s.logger.Printf("welcome: %v", err)
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}
	s.logger.Printf("client connected (%d total)", n)

	go s.discardReads(conn)
}

// welcome sends the current stats to a new client. Called with s.mu held.
func (s *Server) welcome(conn *websocket.Conn) error {
	stats := StatsData{ByKind: map[string]int{}}
	if s.current != nil {
		stats = s.current()
	}
	msg, err := newMessage(MessageTypeStats, stats)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.write(conn, data)
}

// discardReads drains client frames until the connection drops, then
// forgets the client.
func (s *Server) discardReads(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	_, ok := s.clients[conn]
	delete(s.clients, conn)
	n := len(s.clients)
	s.mu.Unlock()

	if ok {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("client disconnected (%d total)", n)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	}
	if s.health != nil {
		body["watcher"] = s.health()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// handleIndex lists the endpoints as plain text.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "ws://%s/ws\tlifecycle events and stats\n", r.Host)
	fmt.Fprintf(w, "http://%s/health\tserver and watcher status\n", r.Host)
	if s.gatherer != nil {
		fmt.Fprintf(w, "http://%s/metrics\tPrometheus metrics\n", r.Host)
	}
}

// GetAddr returns the listening address, or the configured one before Start.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
