package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/mcdev12/partygames/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Connection parameters supplied on the /ws query string.
const (
	ParamSession = "game"
	ParamPlayer  = "player"
	ParamVariant = "playing"
)

// WebSocketHandler handles websocket upgrade requests for game connections.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	registry          *Registry
	sessions          func() int
}

func NewWebSocketHandler(cm *ConnectionManager, registry *Registry, sessions func() int) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		registry:          registry,
		sessions:          sessions,
	}
}

// HandleGameConnection upgrades a player connection. All three identifying
// parameters are required.
func (h *WebSocketHandler) HandleGameConnection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get(ParamSession)
	playerID := q.Get(ParamPlayer)
	playing := q.Get(ParamVariant)

	if sessionID == "" || playerID == "" || playing == "" {
		http.Error(w, "game, player and playing are required", http.StatusBadRequest)
		return
	}

	variant, ok := models.ParseVariant(playing)
	if !ok {
		http.Error(w, "unsupported game type", http.StatusBadRequest)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, sessionID, playerID, variant); err != nil {
		// The upgrader already replied to the client.
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("player_id", playerID).
			Msg("failed to upgrade websocket connection")
		return
	}
}

type connectionStats struct {
	Stats
	OpenConnections int `json:"open_connections"`
	ActiveGames     int `json:"active_games"`
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, connectionStats{
		Stats:           h.registry.Stats(),
		OpenConnections: h.connectionManager.Len(),
		ActiveGames:     h.sessions(),
	})
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleGameConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
