package api

import (
	"net/http"

	"github.com/driftlabs/chatwire/chat"
)

// saveContact adds another user to the caller's address book under a
// nickname. Saving a user already in the book replaces the nickname.
func (a *API) saveContact(w http.ResponseWriter, r *http.Request, userID int64) {
	type request struct {
		UserID   int64  `json:"user_id" validate:"required"`
		Nickname string `json:"nickname" validate:"required"`
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}
	if body.UserID == userID {
		a.respondAppError(w, chat.ErrSelfContact, "Cannot save yourself as a contact")
		return
	}
	if _, err := a.Users.FindByID(r.Context(), body.UserID); err != nil {
		a.respondAppError(w, err, "Could not find user")
		return
	}

	saved, err := a.Contacts.SaveContact(r.Context(), userID, body.UserID, body.Nickname)
	if err != nil {
		a.respondAppError(w, err, "Could not save contact")
		return
	}
	a.respond(w, http.StatusOK, saved)
}

func (a *API) listContacts(w http.ResponseWriter, r *http.Request, userID int64) {
	type response struct {
		Contacts []chat.Contact `json:"contacts"`
	}

	contacts, err := a.Contacts.ListContacts(r.Context(), userID)
	if err != nil {
		a.respondAppError(w, err, "Could not list contacts")
		return
	}
	if contacts == nil {
		contacts = []chat.Contact{}
	}
	a.respond(w, http.StatusOK, response{Contacts: contacts})
}
