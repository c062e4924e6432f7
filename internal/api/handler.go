package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"droplink/internal/logging"
	"droplink/internal/share"
)

// Error codes returned in structured client errors.
const (
	codeNoFiles       = "no_files"
	codeTooManyFiles  = "too_many_files"
	codeFileTooLarge  = "file_too_large"
	codeDuplicateName = "duplicate_filename"
	codeBadRequest    = "bad_request"
	codeNotFound      = "not_found"
	codeInternal      = "internal_error"
)

// uploadField is the multipart field name file parts are read from.
const uploadField = "files"

// Handler handles HTTP requests.
type Handler struct {
	share    *share.Service
	baseURL  string
	mux      *http.ServeMux
	encodeQR func(link string) (string, error)
}

// NewHandler creates a new HTTP handler. baseURL is the externally reachable
// prefix absolute download links are built from.
func NewHandler(svc *share.Service, baseURL string) *Handler {
	h := &Handler{
		share:    svc,
		baseURL:  baseURL,
		mux:      http.NewServeMux(),
		encodeQR: qrDataURI,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("POST /api/upload", h.handleUpload)
	h.mux.HandleFunc("GET /api/file/{name}", h.handleDownload)
	h.mux.HandleFunc("HEAD /api/file/{name}", h.handleDownload)
	h.mux.HandleFunc("GET /api/group/{id}", h.handleGroupDownload)
	h.mux.HandleFunc("GET /api/group/{id}/info", h.handleGroupInfo)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: msg, Code: code}); err != nil {
		logging.HTTP.Printf("failed to encode error response: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.HTTP.Printf("failed to encode response: %v", err)
	}
}

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	Message       string   `json:"message"`
	FileCount     int      `json:"file_count"`
	DownloadLink  string   `json:"download_link"`
	QRCode        string   `json:"qr_code"`
	UploadedFiles []string `json:"uploaded_files"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	limits := h.share.Limits()

	// Cap the whole request at the worst legal batch plus form overhead, so a
	// runaway body cannot be streamed in full before the per-file check trips.
	r.Body = http.MaxBytesReader(w, r.Body, int64(limits.MaxFiles)*(limits.MaxFileSize+1)+1<<20)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "expected multipart form upload")
		return
	}

	batch, err := h.share.NewBatch()
	if err != nil {
		logging.HTTP.Printf("failed to start batch: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "upload failed")
		return
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			batch.Discard(r.Context())
			writeError(w, http.StatusBadRequest, codeBadRequest, "malformed multipart body")
			return
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			part.Close()
			continue
		}

		err = batch.Add(r.Context(), part.FileName(), part)
		part.Close()
		if err != nil {
			batch.Discard(r.Context())
			h.writeUploadError(w, err)
			return
		}
	}

	result, err := batch.Commit(r.Context())
	if err != nil {
		if errors.Is(err, share.ErrNoFiles) {
			writeError(w, http.StatusBadRequest, codeNoFiles, "no files provided")
			return
		}
		logging.HTTP.Printf("upload commit failed: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "upload failed")
		return
	}

	var link string
	if result.GroupID != "" {
		link = h.baseURL + "/api/group/" + result.GroupID
	} else {
		link = h.baseURL + "/api/file/" + url.PathEscape(result.Files[0].StoredName)
	}

	qr, err := h.encodeQR(link)
	if err != nil {
		// The upload already succeeded; a missing QR image is not worth
		// failing the request over.
		logging.HTTP.Printf("qr encoding failed: %v", err)
	}

	names := make([]string, len(result.Files))
	for i, f := range result.Files {
		names[i] = f.OriginalName
	}

	logging.HTTP.Printf("upload complete: files=%d group=%q", len(result.Files), result.GroupID)

	writeJSON(w, UploadResponse{
		Message:       "upload complete",
		FileCount:     len(result.Files),
		DownloadLink:  link,
		QRCode:        qr,
		UploadedFiles: names,
	})
}

func (h *Handler) writeUploadError(w http.ResponseWriter, err error) {
	var tooMany *share.TooManyFilesError
	var tooLarge *share.FileTooLargeError
	var duplicate *share.DuplicateNameError
	var maxBytes *http.MaxBytesError

	switch {
	case errors.As(err, &tooMany):
		writeError(w, http.StatusBadRequest, codeTooManyFiles, tooMany.Error())
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, codeFileTooLarge, tooLarge.Error())
	case errors.As(err, &duplicate):
		writeError(w, http.StatusBadRequest, codeDuplicateName, duplicate.Error())
	case errors.As(err, &maxBytes):
		writeError(w, http.StatusRequestEntityTooLarge, codeFileTooLarge, "upload too large")
	case errors.Is(err, share.ErrBadOriginalName):
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid filename")
	default:
		logging.HTTP.Printf("upload failed: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "upload failed")
	}
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	rc, originalName, err := h.share.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, share.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "file not found")
			return
		}
		logging.HTTP.Printf("download %s failed: %v", name, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "download failed")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": originalName}))

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		// Headers are gone; nothing left to do but log.
		logging.HTTP.Printf("download %s aborted: %v", name, err)
	}
}

func (h *Handler) handleGroupDownload(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	// Resolve the group before committing to a 200; the archive itself is
	// streamed and cannot be rewound.
	if _, err := h.share.GroupFiles(r.Context(), groupID); err != nil {
		h.writeGroupError(w, groupID, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{
			"filename": fmt.Sprintf("DropLink_Files_%s.zip", groupID),
		}))

	if err := h.share.WriteArchive(r.Context(), groupID, w); err != nil {
		logging.HTTP.Printf("archive %s aborted: %v", groupID, err)
	}
}

// GroupInfoResponse describes a group without touching blob content.
type GroupInfoResponse struct {
	Type         string          `json:"type"`
	GroupID      string          `json:"groupId"`
	Files        []GroupInfoFile `json:"files"`
	DownloadLink string          `json:"download_link"`
}

type GroupInfoFile struct {
	Name string `json:"name"`
}

func (h *Handler) handleGroupInfo(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	entries, err := h.share.GroupFiles(r.Context(), groupID)
	if err != nil {
		h.writeGroupError(w, groupID, err)
		return
	}

	files := make([]GroupInfoFile, len(entries))
	for i, e := range entries {
		files[i] = GroupInfoFile{Name: e.OriginalName}
	}

	writeJSON(w, GroupInfoResponse{
		Type:         "group",
		GroupID:      groupID,
		Files:        files,
		DownloadLink: h.baseURL + "/api/group/" + groupID,
	})
}

func (h *Handler) writeGroupError(w http.ResponseWriter, groupID string, err error) {
	if errors.Is(err, share.ErrGroupNotFound) {
		writeError(w, http.StatusNotFound, codeNotFound, "group not found")
		return
	}
	logging.HTTP.Printf("group %s lookup failed: %v", groupID, err)
	writeError(w, http.StatusInternalServerError, codeInternal, "group lookup failed")
}
