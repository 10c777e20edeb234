// Package httpapi is the external boundary: a JSON-over-HTTP surface that
// routes every request into the session registry. It holds no game state of
// its own.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/tourneyhub/gamecore/internal/engine"
	"github.com/tourneyhub/gamecore/internal/events"
	"github.com/tourneyhub/gamecore/internal/session"
)

const maxBodyBytes = 1 << 20

// Server binds the registry and the event feed to the HTTP routes.
type Server struct {
	registry *session.Registry
	feed     *events.Feed
	logger   *log.Logger
	timeout  time.Duration
}

// New creates the server. timeout bounds each request; zero uses 5s.
func New(registry *session.Registry, feed *events.Feed, timeout time.Duration, logger *log.Logger) *Server {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Server{
		registry: registry,
		feed:     feed,
		logger:   logger.WithPrefix("http"),
		timeout:  timeout,
	}
}

// Handler builds the routed handler with the request timeout applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/start_session", s.handleStartSession).Methods(http.MethodPost)
	r.HandleFunc("/get_tournament_session", s.handleTournamentSession).Methods(http.MethodGet)
	r.HandleFunc("/get_session_info", s.handleSessionInfo).Methods(http.MethodGet)
	r.HandleFunc("/get_result", s.handleGetResult).Methods(http.MethodGet)
	r.HandleFunc("/chess_emoji", s.handleChessEmoji).Methods(http.MethodPost)
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	for _, kind := range engine.Kinds() {
		k := kind
		r.HandleFunc(fmt.Sprintf("/join_%s_session", k), s.handleJoin(k)).Methods(http.MethodPost)
		r.HandleFunc(fmt.Sprintf("/start_%s_game", k), s.handleStartGame(k)).Methods(http.MethodPost)
		r.HandleFunc(fmt.Sprintf("/%s_game_state", k), s.handleGameState(k)).Methods(http.MethodGet)
		r.HandleFunc(fmt.Sprintf("/%s_move", k), s.handleMove(k)).Methods(http.MethodPost)
	}
	r.HandleFunc("/submit_tile_match_score", s.handleSubmitScore).Methods(http.MethodPost)

	return http.TimeoutHandler(r, s.timeout, `{"detail":"request timed out"}`)
}

type startSessionRequest struct {
	TournamentID    string   `json:"tournamentId"`
	GameType        string   `json:"game_type"`
	PlayerAddresses []string `json:"playerAddresses"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	kind, err := engine.ParseKind(req.GameType)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.registry.CreateOrGet(req.TournamentID, kind, req.PlayerAddresses)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (s *Server) handleJoin(kind engine.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("sessionId")
		player := r.URL.Query().Get("player")
		if sessionID == "" || player == "" {
			s.respondError(w, http.StatusBadRequest, errors.New("sessionId and player are required"))
			return
		}
		if err := s.checkKind(sessionID, kind); err != nil {
			s.respondFailure(w, err)
			return
		}
		if err := s.registry.Join(sessionID, player); err != nil {
			s.respondFailure(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]bool{"joined": true})
	}
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleStartGame(kind engine.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionRequest
		if !s.decode(w, r, &req) {
			return
		}
		if err := s.checkKind(req.SessionID, kind); err != nil {
			s.respondFailure(w, err)
			return
		}
		if err := s.registry.Start(req.SessionID); err != nil {
			s.respondFailure(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]bool{"started": true})
	}
}

func (s *Server) handleGameState(kind engine.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("sessionId")
		if err := s.checkKind(sessionID, kind); err != nil {
			s.respondFailure(w, err)
			return
		}
		view, err := s.registry.View(sessionID)
		if err != nil {
			s.respondFailure(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, view)
	}
}

type moveRequest struct {
	SessionID string          `json:"sessionId"`
	Player    string          `json:"player"`
	Move      json.RawMessage `json:"move"`
}

func (s *Server) handleMove(kind engine.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moveRequest
		if !s.decode(w, r, &req) {
			return
		}
		if err := s.checkKind(req.SessionID, kind); err != nil {
			s.respondFailure(w, err)
			return
		}
		if err := s.registry.ApplyMove(req.SessionID, req.Player, req.Move); err != nil {
			s.respondFailure(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]bool{"accepted": true})
	}
}

type scoreRequest struct {
	SessionID string `json:"sessionId"`
	Player    string `json:"player"`
	Score     int    `json:"score"`
}

func (s *Server) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.registry.SubmitScore(req.SessionID, req.Player, req.Score); err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"recorded": true})
}

type emojiRequest struct {
	SessionID string `json:"sessionId"`
	Player    string `json:"player"`
	Emoji     string `json:"emoji"`
}

func (s *Server) handleChessEmoji(w http.ResponseWriter, r *http.Request) {
	var req emojiRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Emoji == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("emoji is required"))
		return
	}
	if err := s.registry.SendEmoji(req.SessionID, req.Player, req.Emoji); err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func (s *Server) handleTournamentSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.registry.ByTournament(r.URL.Query().Get("tournamentId"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.registry.Info(r.URL.Query().Get("session_id"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.registry.GetResult(r.URL.Query().Get("session_id"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	if res == nil {
		s.respondJSON(w, http.StatusOK, map[string]any{"result": nil})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"result": res})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	since := uint64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Errorf("bad since value %q", raw))
			return
		}
		since = v
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"events":   s.feed.Since(since),
		"last_seq": s.feed.LastSeq(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.registry.SessionCount(),
	})
}

// checkKind rejects requests that address a session through the wrong
// kind-specific route.
func (s *Server) checkKind(sessionID string, kind engine.Kind) error {
	info, err := s.registry.Info(sessionID)
	if err != nil {
		return err
	}
	if info.GameType != string(kind) {
		return fmt.Errorf("%w: session is %s, not %s", engine.ErrIllegalMove, info.GameType, kind)
	}
	return nil
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(into); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return false
	}
	return true
}

// respondFailure maps typed failures to status codes.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrUnknownSession), errors.Is(err, session.ErrUnknownTournament):
		s.respondError(w, http.StatusNotFound, err)
	case errors.Is(err, session.ErrSessionEnded), errors.Is(err, engine.ErrGameOver):
		s.respondError(w, http.StatusConflict, err)
	case errors.Is(err, engine.ErrIllegalMove),
		errors.Is(err, engine.ErrNotYourTurn),
		errors.Is(err, engine.ErrUnknownSeat),
		errors.Is(err, session.ErrSessionClosedToJoins),
		errors.Is(err, session.ErrSessionNotStarted),
		errors.Is(err, session.ErrUnknownPlayer),
		errors.Is(err, session.ErrTooManyPlayers):
		s.respondError(w, http.StatusBadRequest, err)
	default:
		s.logger.Error("internal error", "error", err)
		s.respondError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.respondJSON(w, status, map[string]string{"detail": err.Error()})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}
