package api

import (
	"net/http"
)

func (a *API) heartbeat(w http.ResponseWriter, r *http.Request, userID int64) {
	if err := a.Presence.Heartbeat(r.Context(), userID); err != nil {
		a.respondAppError(w, err, "Could not record heartbeat")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) onlineUsers(w http.ResponseWriter, r *http.Request, _ int64) {
	type response struct {
		UserIDs []int64 `json:"user_ids"`
	}

	ids, err := a.Presence.OnlineUsers(r.Context())
	if err != nil {
		a.respondAppError(w, err, "Could not list online users")
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	a.respond(w, http.StatusOK, response{UserIDs: ids})
}
