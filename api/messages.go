package api

import (
	"net/http"
)

func (a *API) createMessage(w http.ResponseWriter, r *http.Request, userID int64) {
	type request struct {
		ConversationID int64  `json:"conversation_id" validate:"required"`
		Content        string `json:"content" validate:"required"`
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	msg, err := a.Chat.Submit(r.Context(), body.ConversationID, userID, body.Content)
	if err != nil {
		a.respondAppError(w, err, "Could not send message")
		return
	}
	a.respond(w, http.StatusCreated, msg)
}

func (a *API) editMessage(w http.ResponseWriter, r *http.Request, userID int64) {
	type request struct {
		Content string `json:"content" validate:"required"`
	}

	messageID, ok := a.pathID(w, r, "messageID")
	if !ok {
		return
	}
	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	msg, err := a.Chat.Edit(r.Context(), messageID, userID, body.Content)
	if err != nil {
		a.respondAppError(w, err, "Could not edit message")
		return
	}
	a.respond(w, http.StatusOK, msg)
}

func (a *API) deleteMessage(w http.ResponseWriter, r *http.Request, userID int64) {
	messageID, ok := a.pathID(w, r, "messageID")
	if !ok {
		return
	}

	msg, err := a.Chat.DeleteForEveryone(r.Context(), messageID, userID)
	if err != nil {
		a.respondAppError(w, err, "Could not delete message")
		return
	}
	a.respond(w, http.StatusOK, msg)
}

func (a *API) deleteMessageForMe(w http.ResponseWriter, r *http.Request, userID int64) {
	messageID, ok := a.pathID(w, r, "messageID")
	if !ok {
		return
	}

	if err := a.Chat.DeleteForMe(r.Context(), messageID, userID); err != nil {
		a.respondAppError(w, err, "Could not delete message")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) toggleReaction(w http.ResponseWriter, r *http.Request, userID int64) {
	type request struct {
		Emoji string `json:"emoji" validate:"required"`
	}

	messageID, ok := a.pathID(w, r, "messageID")
	if !ok {
		return
	}
	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	if err := a.Chat.ToggleReaction(r.Context(), messageID, userID, body.Emoji); err != nil {
		a.respondAppError(w, err, "Could not toggle reaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
