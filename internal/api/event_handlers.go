package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// @Summary      Get journal events
// @Description  Returns up to 100 lifecycle events for the authenticated user with an ID greater than `since`.
// @Tags         events
// @Produce      json
// @Security     BearerAuth
// @Param        since  query     int  false  "Last event ID already seen"
// @Success      200    {array}   database.Event
// @Failure      401    {string}  string "Unauthorized"
// @Router       /events [get]
func (s *Server) GetEventsHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	var sinceID int64
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		var err error
		sinceID, err = strconv.ParseInt(sinceStr, 10, 64)
		if err != nil {
			http.Error(w, "Invalid 'since' parameter", http.StatusBadRequest)
			return
		}
	}

	events, err := s.store.GetEventsSince(r.Context(), claims.UserID, sinceID)
	if err != nil {
		http.Error(w, "Failed to retrieve events", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}
