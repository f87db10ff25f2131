package api

import (
	"errors"
	"net/http"
)

// maxUploadBytes caps attachment size at 20 MiB.
const maxUploadBytes = 20 << 20

func (a *API) uploadFile(w http.ResponseWriter, r *http.Request, _ int64) {
	type response struct {
		URL string `json:"url"`
	}

	if a.Files == nil {
		a.respondError(w, http.StatusNotImplemented, errors.New("file store not configured"), "File uploads are not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not read file from request")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	url, err := a.Files.Upload(r.Context(), header.Filename, contentType, file)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not store file")
		return
	}
	a.respond(w, http.StatusCreated, response{URL: url})
}
