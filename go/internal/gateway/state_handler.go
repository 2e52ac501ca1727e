package gateway

import (
	"errors"
	"net/http"

	"github.com/mcdev12/partygames/go/internal/catalog"
	"github.com/mcdev12/partygames/go/internal/game"
	"github.com/mcdev12/partygames/go/internal/session"
	"github.com/rs/zerolog/log"
)

// GameStateResponse is the read-only view of one session.
type GameStateResponse struct {
	ID               string `json:"id"`
	Variant          string `json:"variant"`
	Connections      int    `json:"connections"`
	ConnectedPlayers int    `json:"connected_players"`
	Game             any    `json:"game"`
}

// StateHandler serves read-only game and catalog data over HTTP.
type StateHandler struct {
	store    *session.Store
	registry *Registry
	catalog  *catalog.Catalog
}

func NewStateHandler(store *session.Store, registry *Registry, cat *catalog.Catalog) *StateHandler {
	return &StateHandler{
		store:    store,
		registry: registry,
		catalog:  cat,
	}
}

// HandleGetGameState handles GET /api/game?id=.
func (h *StateHandler) HandleGetGameState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Game ID is required", http.StatusBadRequest)
		return
	}

	sess, ok := h.store.Get(id)
	if !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}

	resp := GameStateResponse{
		ID:          id,
		Variant:     sess.Variant().String(),
		Connections: h.registry.Count(id),
	}
	err := sess.Read(r.Context(), func(g game.Game) {
		resp.Game = g.View()
		resp.ConnectedPlayers = g.ConnectedPlayers()
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		log.Error().Err(err).Str("session_id", id).Msg("failed to read game state")
		http.Error(w, "Failed to get game state", status)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleGetCategories handles GET /api/catagories.
func (h *StateHandler) HandleGetCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.catalog.CategorySummaries())
}

// HandleGetPacks handles GET /api/packs.
func (h *StateHandler) HandleGetPacks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.catalog.PackSummaries())
}

func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/game", h.HandleGetGameState)
	mux.HandleFunc("/api/catagories", h.HandleGetCategories)
	mux.HandleFunc("/api/packs", h.HandleGetPacks)
}
