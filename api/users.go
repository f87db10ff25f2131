package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/driftlabs/chatwire/apperror"
	"github.com/driftlabs/chatwire/chat"
)

// login exchanges a phone number and activation code for an access
// token. The configured master key acts as a universal code and creates
// the account on first use.
func (a *API) login(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			PhoneNumber string `json:"phone_number" validate:"required"`
			Code        string `json:"code" validate:"required"`
			DisplayName string `json:"display_name"`
		}
		response struct {
			Token string `json:"token"`
			User  User   `json:"user"`
		}
	)

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	user, err := a.Users.FindByPhone(r.Context(), body.PhoneNumber)
	switch {
	case errors.Is(err, chat.ErrUserNotFound):
		if a.MasterKey == "" || body.Code != a.MasterKey {
			a.respondError(w, http.StatusUnauthorized, apperror.Unauthorized("unknown phone number"), "Invalid phone number or code")
			return
		}
		user, err = a.Users.InsertUser(r.Context(), chat.User{
			PhoneNumber: body.PhoneNumber,
			DisplayName: body.DisplayName,
		}, body.Code)
		if err != nil {
			a.respondError(w, http.StatusInternalServerError, err, "Could not create user")
			return
		}
		a.Logger.Info("Created user on first login", "user_id", user.ID)
	case err != nil:
		a.respondError(w, http.StatusInternalServerError, err, "Could not look up user")
		return
	default:
		code, err := a.Users.ActivationCode(r.Context(), user.ID)
		if err != nil {
			a.respondError(w, http.StatusInternalServerError, err, "Could not look up user")
			return
		}
		if body.Code != code && (a.MasterKey == "" || body.Code != a.MasterKey) {
			a.respondError(w, http.StatusUnauthorized, apperror.Unauthorized("wrong activation code"), "Invalid phone number or code")
			return
		}
	}

	if err := a.Users.TouchLastLogin(r.Context(), user.ID, time.Now()); err != nil {
		a.Logger.Error("Could not record login time", "error", err.Error())
	}

	token, err := a.Tokens.Issue(user.ID)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not issue token")
		return
	}

	a.respond(w, http.StatusOK, response{Token: token, User: userFromChat(user)})
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request, userID int64) {
	type response struct {
		Users []User `json:"users"`
	}

	users, err := a.Users.ListUsers(r.Context(), userID)
	if err != nil {
		a.respondAppError(w, err, "Could not list users")
		return
	}

	res := response{Users: make([]User, 0, len(users))}
	for _, u := range users {
		res.Users = append(res.Users, userFromChat(u))
	}
	a.respond(w, http.StatusOK, res)
}

func (a *API) me(w http.ResponseWriter, r *http.Request, userID int64) {
	user, err := a.Users.FindByID(r.Context(), userID)
	if err != nil {
		a.respondAppError(w, err, "Could not load profile")
		return
	}
	a.respond(w, http.StatusOK, userFromChat(user))
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request, userID int64) {
	type request struct {
		DisplayName string `json:"display_name" validate:"required"`
		AvatarURL   string `json:"avatar_url" validate:"omitempty,url"`
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	user, err := a.Users.UpdateProfile(r.Context(), userID, body.DisplayName, body.AvatarURL)
	if err != nil {
		a.respondAppError(w, err, "Could not update profile")
		return
	}
	a.respond(w, http.StatusOK, userFromChat(user))
}
