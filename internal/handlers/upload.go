package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"callinsight-backend/internal/logger"
	"callinsight-backend/internal/storage"
)

type UploadHandler struct {
	store    storage.ObjectStore
	maxBytes int64
	timeout  time.Duration
	now      func() time.Time
	log      *logger.Logger
}

func NewUploadHandler(store storage.ObjectStore, maxBytes int64, timeout time.Duration, log *logger.Logger) *UploadHandler {
	return &UploadHandler{store: store, maxBytes: maxBytes, timeout: timeout, now: time.Now, log: log}
}

type uploadResult struct {
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
	FileSize int64  `json:"file_size"`
	FileType string `json:"file_type"`
}

// Upload handles POST /upload. The recording is streamed to object storage
// under a generated key; the caller retries the whole request on timeout.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "File exceeds the upload size limit", r))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "File exceeds the upload size limit", r))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"file": "No file provided"}, r))
		return
	}
	defer file.Close()

	if header.Size == 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"file": "File is empty"}, r))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(header.Filename)); byExt != "" {
			contentType = byExt
		}
	}
	if contentType == "" {
		buf := make([]byte, 512)
		n, _ := io.ReadFull(file, buf)
		contentType = http.DetectContentType(buf[:n])
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			handleServiceError(w, r, h.log, err)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	key := storage.ObjectKey(header.Filename, h.now())
	size, err := h.store.Put(ctx, key, contentType, file)
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, errorResp("STORAGE_UNAVAILABLE", "File storage is not configured", r))
		return
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorResp("UPLOAD_TIMEOUT", "Upload timed out, please retry", r))
		return
	case err != nil:
		handleServiceError(w, r, h.log, err)
		return
	}

	h.log.WithRequest(r).WithField("object", key).WithField("bytes", size).Info("recording uploaded")
	writeJSON(w, http.StatusOK, okResp(uploadResult{
		FileName: header.Filename,
		FileURL:  h.store.PublicURL(key),
		FileSize: size,
		FileType: contentType,
	}))
}
