// Package server exposes the session runtime over a JSON-frame WebSocket
// transport. Clients join a session's broadcast room, are granted a player
// seat, and then submit per-action command frames; every applied command fans
// the refreshed view out to the room.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Honey-Be/trlg-statemachine/internal/game/dice"
	"github.com/Honey-Be/trlg-statemachine/internal/game/engine/trlg"
	"github.com/Honey-Be/trlg-statemachine/internal/game/session"
	"github.com/Honey-Be/trlg-statemachine/internal/game/storage"
	"github.com/Honey-Be/trlg-statemachine/internal/game/storage/memory"
	"github.com/Honey-Be/trlg-statemachine/internal/game/storage/redis"
	"github.com/Honey-Be/trlg-statemachine/internal/game/storage/sqlite"
	apperrors "github.com/Honey-Be/trlg-statemachine/internal/platform/errors"
	"golang.org/x/net/websocket"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
)

// Store backends selectable through Config.StoreBackend.
const (
	StoreBackendMemory = "memory"
	StoreBackendRedis  = "redis"
	StoreBackendSQLite = "sqlite"
)

// Config defines the inputs for the game transport boundary.
type Config struct {
	HTTPAddr          string
	StoreBackend      string
	RedisURL          string
	SQLitePath        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the game HTTP/WebSocket process. It owns the document store
// connection and the session registry built over it.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	registry        *session.Registry
	storeCloser     io.Closer
}

// NewServer builds a configured game server over the selected store backend.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaultShutdownTimeout
	}

	store, closer, err := openStore(config)
	if err != nil {
		return nil, err
	}

	roller, err := dice.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("seed dice roller: %w", err)
	}

	hub := newGameHub()
	registry := session.NewRegistry(trlg.New(trlg.WithRoll(roller.Face)), store, session.NewCache(), hub)

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           newHandler(registry, hub),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		registry:        registry,
		storeCloser:     closer,
	}, nil
}

func openStore(config Config) (storage.DocumentStore, io.Closer, error) {
	switch strings.TrimSpace(config.StoreBackend) {
	case "", StoreBackendMemory:
		return memory.New(), nil, nil
	case StoreBackendRedis:
		store, err := redis.Open(config.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		return store, store, nil
	case StoreBackendSQLite:
		store, err := sqlite.Open(config.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", config.StoreBackend)
	}
}

// LoadKnownSessions restores every indexed session into the registry.
func (s *Server) LoadKnownSessions(ctx context.Context) (int, error) {
	return s.registry.LoadKnownSessions(ctx)
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("game server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("game server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.storeCloser != nil {
		if err := s.storeCloser.Close(); err != nil {
			log.Printf("close document store: %v", err)
		}
	}
}

// Run creates and serves a game server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init game server: %w", err)
	}
	defer server.Close()

	opened, err := server.LoadKnownSessions(ctx)
	if err != nil {
		return fmt.Errorf("load known sessions: %w", err)
	}
	log.Printf("game server restored %d session(s) from the index", opened)

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve game: %w", err)
	}
	return nil
}

// NewHandler creates game routes over an in-memory runtime for tests and
// offline paths.
func NewHandler() http.Handler {
	hub := newGameHub()
	registry := session.NewRegistry(trlg.New(), memory.New(), session.NewCache(), hub)
	return newHandler(registry, hub)
}

func newHandler(registry *session.Registry, hub *gameHub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, registry, hub)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	return mux
}

// wsClient is one connection's binding state. A client starts unbound, joins
// a session's broadcast room, and is optionally granted a player seat. Only
// granted clients may submit command frames.
type wsClient struct {
	mu      sync.Mutex
	peer    *wsPeer
	room    *gameRoom
	gameID  string
	account string
	slot    int
	granted bool
}

func newWSClient(peer *wsPeer) *wsClient {
	return &wsClient{peer: peer}
}

// bindRoom moves the client to a new room, returning the previous one so the
// caller can unsubscribe it. Rebinding always revokes any held grant.
func (c *wsClient) bindRoom(room *gameRoom, gameID string) *gameRoom {
	c.mu.Lock()
	previous := c.room
	c.room = room
	c.gameID = gameID
	c.account = ""
	c.slot = 0
	c.granted = false
	c.mu.Unlock()
	return previous
}

func (c *wsClient) bindGrant(account string, slot int) {
	c.mu.Lock()
	c.account = account
	c.slot = slot
	c.granted = true
	c.mu.Unlock()
}

func (c *wsClient) binding() (gameID string, granted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameID, c.granted
}

func (c *wsClient) currentRoom() *gameRoom {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func handleWSConn(conn *websocket.Conn, registry *session.Registry, hub *gameHub) {
	defer func() {
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	client := newWSClient(newWSPeer(json.NewEncoder(conn)))
	defer func() {
		if room := client.currentRoom(); room != nil {
			room.leave(client.peer)
		}
	}()

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(client.peer, "", apperrors.CodeEventInvalid, "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(client.peer, frame.RequestID, apperrors.CodeEventInvalid, "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(client.peer, frame.RequestID, apperrors.CodeEventInvalid, "rate limit exceeded")
			return
		}

		ctx := context.Background()
		if request := conn.Request(); request != nil {
			ctx = request.Context()
		}

		switch frame.Type {
		case "game.register":
			handleRegisterFrame(ctx, client, registry, frame)
		case "game.join":
			handleJoinFrame(ctx, client, registry, hub, frame)
		case "game.grant":
			handleGrantFrame(client, registry, frame)
		case "game.view":
			handleViewFrame(client, registry, frame)
		default:
			handleCommandFrame(ctx, client, registry, frame)
		}
	}
}

func handleRegisterFrame(ctx context.Context, client *wsClient, registry *session.Registry, frame wsFrame) {
	var payload registerPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(client.peer, frame.RequestID, apperrors.CodeEventInvalid, "invalid register payload")
		return
	}

	gameID := strings.TrimSpace(payload.GameID)
	outcome, err := registry.Register(ctx, gameID, payload.Accounts, payload.Snapshot)
	if err != nil {
		log.Printf("game: register session %q: %v", gameID, err)
		_ = writeGameError(client.peer, frame.RequestID, err)
		return
	}

	_ = client.peer.writeFrame(wsFrame{
		Type:      "game.registered",
		RequestID: frame.RequestID,
		Payload: mustJSON(registeredPayload{
			GameID:  gameID,
			Outcome: outcome.String(),
		}),
	})
}

func handleJoinFrame(ctx context.Context, client *wsClient, registry *session.Registry, hub *gameHub, frame wsFrame) {
	var payload joinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(client.peer, frame.RequestID, apperrors.CodeEventInvalid, "invalid join payload")
		return
	}

	gameID := strings.TrimSpace(payload.GameID)
	if gameID == "" {
		_ = writeWSError(client.peer, frame.RequestID, apperrors.CodeSessionEmptyGameID, "game_id is required")
		return
	}

	// A session joinable on this connection must be live in the registry;
	// opening is idempotent and restores evicted-but-durable sessions.
	if err := registry.Open(ctx, gameID); err != nil {
		log.Printf("game: join session %q: %v", gameID, err)
		_ = client.peer.writeFrame(wsFrame{
			Type:      "game.join_failed",
			RequestID: frame.RequestID,
			Payload: mustJSON(joinFailedPayload{
				GameID: gameID,
				Reason: string(apperrors.CodeOf(err)),
			}),
		})
		return
	}

	room := hub.room(gameID)
	previous := client.bindRoom(room, gameID)
	if previous != nil && previous != room {
		previous.leave(client.peer)
	}
	room.join(client.peer)

	_ = client.peer.writeFrame(wsFrame{
		Type:      "game.joined",
		RequestID: frame.RequestID,
		Payload:   mustJSON(joinedPayload{GameID: gameID}),
	})

	// Joining clients immediately receive the current view so late joiners
	// render without waiting for the next command.
	view, err := registry.View(gameID)
	if err != nil {
		log.Printf("game: view session %q on join: %v", gameID, err)
		return
	}
	_ = client.peer.writeFrame(refreshFrame(view))
}

func handleGrantFrame(client *wsClient, registry *session.Registry, frame wsFrame) {
	var payload grantPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(client.peer, frame.RequestID, apperrors.CodeEventInvalid, "invalid grant payload")
		return
	}

	gameID, _ := client.binding()
	if gameID == "" {
		_ = writeWSError(client.peer, frame.RequestID, apperrors.CodePlayNotJoined, "must join a session before requesting a grant")
		return
	}
	if requested := strings.TrimSpace(payload.GameID); requested != "" && requested != gameID {
		_ = writeWSError(client.peer, frame.RequestID, apperrors.CodeEventInvalid, "game_id does not match the joined session")
		return
	}

	account := strings.TrimSpace(payload.Account)
	if account == "" {
		_ = writeWSError(client.peer, frame.RequestID, apperrors.CodeEventInvalid, "account is required")
		return
	}

	slot, err := registry.ResolveAccountSlot(gameID, account)
	if err != nil {
		if errors.Is(err, session.ErrNotGranted) {
			_ = client.peer.writeFrame(wsFrame{
				Type:      "game.not_granted",
				RequestID: frame.RequestID,
				Payload: mustJSON(notGrantedPayload{
					GameID:  gameID,
					Account: account,
				}),
			})
			return
		}
		_ = writeGameError(client.peer, frame.RequestID, err)
		return
	}

	client.bindGrant(account, slot)
	_ = client.peer.writeFrame(wsFrame{
		Type:      "game.granted",
		RequestID: frame.RequestID,
		Payload: mustJSON(grantedPayload{
			GameID:  gameID,
			Account: account,
			Slot:    slot,
		}),
	})
}

func handleViewFrame(client *wsClient, registry *session.Registry, frame wsFrame) {
	if len(frame.Payload) > 0 {
		var payload viewPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			_ = writeWSError(client.peer, frame.RequestID, apperrors.CodeEventInvalid, "invalid view payload")
			return
		}
	}

	gameID, _ := client.binding()
	if gameID == "" {
		_ = writeWSError(client.peer, frame.RequestID, apperrors.CodePlayNotJoined, "must join a session before requesting a view")
		return
	}

	view, err := registry.View(gameID)
	if err != nil {
		_ = writeGameError(client.peer, frame.RequestID, err)
		return
	}

	frameOut := refreshFrame(view)
	frameOut.RequestID = frame.RequestID
	_ = client.peer.writeFrame(frameOut)
}

func handleCommandFrame(ctx context.Context, client *wsClient, registry *session.Registry, frame wsFrame) {
	event, known, err := commandEvent(frame.Type, frame.Payload)
	if !known {
		_ = writeWSError(client.peer, frame.RequestID, apperrors.CodeEventInvalid, "unsupported frame type")
		return
	}
	if err != nil {
		_ = writeGameError(client.peer, frame.RequestID, err)
		return
	}

	gameID, granted := client.binding()
	if gameID == "" {
		_ = writeWSError(client.peer, frame.RequestID, apperrors.CodePlayNotJoined, "must join a session before sending commands")
		return
	}
	if !granted {
		_ = writeWSError(client.peer, frame.RequestID, apperrors.CodePlayNotGranted, "must hold a player seat to send commands")
		return
	}

	if err := registry.Dispatch(ctx, gameID, event); err != nil {
		log.Printf("game: dispatch %s to session %q: %v", event.Name(), gameID, err)
		_ = writeGameError(client.peer, frame.RequestID, err)
	}
}
