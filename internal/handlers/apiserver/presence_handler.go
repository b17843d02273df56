package apiserver

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"

	appRedis "petpulse/internal/redis"
)

// PresenceHandler reports whether a user currently holds a live chat
// connection, for the online badge next to chat partners.
type PresenceHandler struct {
	presence appRedis.PresenceRegistry
}

// NewPresenceHandler creates a PresenceHandler.
func NewPresenceHandler(presence appRedis.PresenceRegistry) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// GetPresenceHandler returns the user's online state.
func (h *PresenceHandler) GetPresenceHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	online, err := h.presence.IsOnline(r.Context(), userID)
	if err != nil {
		log.Printf("error reading presence for user %s: %v", userID, err)
		writeJSONError(w, "failed to read presence", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"online":  online,
	})
}
