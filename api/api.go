package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/driftlabs/chatwire/api/validator"
	"github.com/driftlabs/chatwire/apperror"
	"github.com/driftlabs/chatwire/auth"
	"github.com/driftlabs/chatwire/chat"
)

type (
	// Validator re-exports the request validator for callers wiring the API.
	Validator       = validator.Validator
	ValidationError = validator.ValidationError
)

// NewValidator builds the request validator the API expects.
func NewValidator() *Validator {
	return validator.New()
}

// A Chat provides the message delivery engine.
type Chat interface {
	Submit(ctx context.Context, conversationID, senderID int64, content string) (chat.MessageView, error)
	FetchPage(ctx context.Context, conversationID int64, page, size int, viewerID int64) (chat.Page, error)
	MarkSeen(ctx context.Context, conversationID, viewerID int64) error
	Edit(ctx context.Context, messageID, userID int64, newContent string) (chat.MessageView, error)
	DeleteForEveryone(ctx context.Context, messageID, userID int64) (chat.MessageView, error)
	DeleteForMe(ctx context.Context, messageID, userID int64) error
	ToggleReaction(ctx context.Context, messageID, userID int64, emoji string) error
	CreateOrGetConversation(ctx context.Context, userID, otherID int64) (chat.Conversation, error)
	ListConversations(ctx context.Context, userID int64) ([]chat.Conversation, error)
}

// A Users provides the user directory and login bookkeeping.
type Users interface {
	FindByID(ctx context.Context, id int64) (chat.User, error)
	FindByPhone(ctx context.Context, phone string) (chat.User, error)
	ActivationCode(ctx context.Context, userID int64) (string, error)
	InsertUser(ctx context.Context, u chat.User, activationCode string) (chat.User, error)
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error
	UpdateProfile(ctx context.Context, userID int64, displayName, avatarURL string) (chat.User, error)
	ListUsers(ctx context.Context, excludeID int64) ([]chat.User, error)
}

// A Contacts provides the per-user address book.
type Contacts interface {
	SaveContact(ctx context.Context, ownerID, savedUserID int64, nickname string) (chat.Contact, error)
	ListContacts(ctx context.Context, ownerID int64) ([]chat.Contact, error)
}

// A Presence answers who is online.
type Presence interface {
	Heartbeat(ctx context.Context, userID int64) error
	OnlineUsers(ctx context.Context) ([]int64, error)
}

// A Tokens issues and validates access tokens.
type Tokens interface {
	Issue(userID int64) (string, error)
	Validate(token string) (*auth.Claims, error)
}

// A FileStore persists uploaded attachments and returns their URL.
type FileStore interface {
	Upload(ctx context.Context, filename, contentType string, body io.Reader) (string, error)
}

// API provides the REST endpoints for the application.
type API struct {
	Logger   *slog.Logger
	Chat     Chat
	Users    Users
	Contacts Contacts
	Presence Presence
	Tokens   Tokens
	Files    FileStore
	Val      *Validator

	// MasterKey unlocks activation login for accounts that do not
	// exist yet.
	MasterKey string

	once sync.Once
	mux  *http.ServeMux
}

// pageSize defines the default number of items displayed on a single page in pagination.
var pageSize = 10

func (a *API) setupRoutes() {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", a.login)

	mux.HandleFunc("GET /api/users", a.authed(a.listUsers))
	mux.HandleFunc("GET /api/users/me", a.authed(a.me))
	mux.HandleFunc("PATCH /api/users/me", a.authed(a.updateProfile))

	mux.HandleFunc("POST /api/contacts", a.authed(a.saveContact))
	mux.HandleFunc("GET /api/contacts", a.authed(a.listContacts))

	mux.HandleFunc("POST /api/conversations", a.authed(a.createConversation))
	mux.HandleFunc("GET /api/conversations", a.authed(a.listConversations))
	mux.HandleFunc("GET /api/conversations/{conversationID}/messages", a.authed(a.listMessages))
	mux.HandleFunc("POST /api/conversations/{conversationID}/seen", a.authed(a.markSeen))

	mux.HandleFunc("POST /api/messages", a.authed(a.createMessage))
	mux.HandleFunc("PATCH /api/messages/{messageID}", a.authed(a.editMessage))
	mux.HandleFunc("DELETE /api/messages/{messageID}", a.authed(a.deleteMessage))
	mux.HandleFunc("POST /api/messages/{messageID}/deletions", a.authed(a.deleteMessageForMe))
	mux.HandleFunc("POST /api/messages/{messageID}/reactions", a.authed(a.toggleReaction))

	mux.HandleFunc("POST /api/presence/heartbeat", a.authed(a.heartbeat))
	mux.HandleFunc("GET /api/presence/online", a.authed(a.onlineUsers))

	mux.HandleFunc("POST /api/files", a.authed(a.uploadFile))

	a.mux = mux
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path)
	a.mux.ServeHTTP(w, r)
}

// authed validates the bearer token and hands the authenticated user ID
// to the wrapped handler. The claims also land on the request context.
func (a *API) authed(next func(w http.ResponseWriter, r *http.Request, userID int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			a.respondError(w, http.StatusUnauthorized, apperror.Unauthorized("missing token"), "Missing access token")
			return
		}
		claims, err := a.Tokens.Validate(token)
		if err != nil {
			a.respondError(w, http.StatusUnauthorized, err, "Invalid access token")
			return
		}
		ctx := context.WithValue(r.Context(), auth.ClaimsKey, claims)
		next(w, r.WithContext(ctx), claims.UserID)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return after
	}
	return r.URL.Query().Get("token")
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Error string `json:"error"`
	}
	a.Logger.Error("Error", "error", err.Error())
	a.respond(w, status, response{Error: msg})
}

// respondAppError maps the error's code onto an HTTP status. Unknown
// codes (wrapped driver errors and the like) become 500.
func (a *API) respondAppError(w http.ResponseWriter, err error, msg string) {
	status := http.StatusInternalServerError
	switch apperror.CodeOf(err) {
	case apperror.CodeNotFound:
		status = http.StatusNotFound
	case apperror.CodePermissionDenied:
		status = http.StatusForbidden
	case apperror.CodeConflict:
		status = http.StatusConflict
	case apperror.CodeExpired:
		status = http.StatusGone
	case apperror.CodeInvalidArgument:
		status = http.StatusBadRequest
	case apperror.CodeUnauthenticated:
		status = http.StatusUnauthorized
	}
	a.respondError(w, status, err, msg)
}

func (a *API) validateBody(w http.ResponseWriter, s interface{}) bool {
	errs := a.Val.ValidateStruct(s)
	type response struct {
		Errors []ValidationError `json:"errors"`
	}

	if len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, &response{
			Errors: errs,
		})
		return false
	}
	return true
}

func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return false
	}
	if err := r.Body.Close(); err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not close request body")
		return false
	}
	return a.validateBody(w, dst)
}

// pathID parses the named path segment as an int64 ID.
func (a *API) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Invalid "+name)
		return 0, false
	}
	return id, true
}
