package http

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/usablelab/instrueval/internal/media"
	"github.com/usablelab/instrueval/internal/storage"
	"github.com/usablelab/instrueval/internal/survey"
)

// InlineDocHandler streams a pdf document inline. Non-pdf documents get a
// client error rather than bytes of the wrong kind.
func InlineDocHandler(svc *survey.Service, blobs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "docID"), 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		doc, err := svc.Doc(r.Context(), id)
		if errors.Is(err, survey.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		if doc.Kind != survey.MediaPDF {
			http.Error(w, "not a PDF", http.StatusBadRequest)
			return
		}
		f, size, err := blobs.Open(doc.FilePath)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Filename()))
		media.ServeContent(w, r, f, size, "application/pdf")
	}
}

// StreamVideoHandler serves a video file with byte-range support, so the
// player can seek and retry partial requests.
func StreamVideoHandler(blobs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := path.Base(chi.URLParam(r, "filename")) // no path escapes
		if filename == "." || filename == "/" {
			http.NotFound(w, r)
			return
		}
		f, size, err := blobs.Open("videos/" + filename)
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		ct := mime.TypeByExtension(path.Ext(filename))
		if ct == "" {
			ct = "video/mp4"
		}
		media.ServeContent(w, r, f, size, ct)
	}
}
