package api

import (
	"net/http"
	"strconv"
)

func (a *API) createConversation(w http.ResponseWriter, r *http.Request, userID int64) {
	type request struct {
		OtherUserID int64 `json:"other_user_id" validate:"required"`
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	conv, err := a.Chat.CreateOrGetConversation(r.Context(), userID, body.OtherUserID)
	if err != nil {
		a.respondAppError(w, err, "Could not create conversation")
		return
	}
	a.respond(w, http.StatusCreated, conversationFromChat(conv, userID))
}

func (a *API) listConversations(w http.ResponseWriter, r *http.Request, userID int64) {
	type response struct {
		Conversations []Conversation `json:"conversations"`
	}

	convs, err := a.Chat.ListConversations(r.Context(), userID)
	if err != nil {
		a.respondAppError(w, err, "Could not list conversations")
		return
	}

	res := response{Conversations: make([]Conversation, 0, len(convs))}
	for _, c := range convs {
		res.Conversations = append(res.Conversations, conversationFromChat(c, userID))
	}
	a.respond(w, http.StatusOK, res)
}

// listMessages serves one page of conversation history, newest first.
// Fetching a page marks messages sent by the other participant as
// delivered.
func (a *API) listMessages(w http.ResponseWriter, r *http.Request, userID int64) {
	conversationID, ok := a.pathID(w, r, "conversationID")
	if !ok {
		return
	}

	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			a.respondError(w, http.StatusBadRequest, errInvalidQuery("page", v), "Invalid page")
			return
		}
		page = n
	}
	size := pageSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			a.respondError(w, http.StatusBadRequest, errInvalidQuery("size", v), "Invalid size")
			return
		}
		size = n
	}

	res, err := a.Chat.FetchPage(r.Context(), conversationID, page, size, userID)
	if err != nil {
		a.respondAppError(w, err, "Could not list messages")
		return
	}
	a.respond(w, http.StatusOK, res)
}

func (a *API) markSeen(w http.ResponseWriter, r *http.Request, userID int64) {
	conversationID, ok := a.pathID(w, r, "conversationID")
	if !ok {
		return
	}

	if err := a.Chat.MarkSeen(r.Context(), conversationID, userID); err != nil {
		a.respondAppError(w, err, "Could not mark conversation seen")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errInvalidQueryParam struct {
	param, value string
}

func (e errInvalidQueryParam) Error() string {
	return "invalid query parameter " + e.param + "=" + e.value
}

func errInvalidQuery(param, value string) error {
	return errInvalidQueryParam{param: param, value: value}
}
