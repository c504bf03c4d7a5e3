package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/SourceBox-LLC/OpenS3-server/internal/audit"
	"github.com/SourceBox-LLC/OpenS3-server/internal/middleware"
	"github.com/SourceBox-LLC/OpenS3-server/internal/stats"
	"github.com/SourceBox-LLC/OpenS3-server/internal/storage"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing; larger
// uploads spill to temp files.
const maxUploadMemory = 32 << 20

// Handler serves the JSON REST API. The audit store and usage tracker are
// optional; a nil value disables the corresponding feature.
type Handler struct {
	backend  storage.Backend
	auditLog audit.Store
	usage    *stats.Tracker
}

// NewHandler creates an API handler backed by the given storage backend
func NewHandler(backend storage.Backend, auditLog audit.Store, usage *stats.Tracker) *Handler {
	return &Handler{
		backend:  backend,
		auditLog: auditLog,
		usage:    usage,
	}
}

// RegisterRoutes attaches all API routes to the router. The metadata route
// must be registered before the greedy download route so single-segment
// "/metadata" suffixes are not swallowed by the key pattern.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/buckets", h.handleCreateBucket).Methods(http.MethodPost)
	r.HandleFunc("/buckets", h.handleListBuckets).Methods(http.MethodGet)
	r.HandleFunc("/buckets/{bucket}", h.handleHeadBucket).Methods(http.MethodHead)
	r.HandleFunc("/buckets/{bucket}", h.handleDeleteBucket).Methods(http.MethodDelete)

	r.HandleFunc("/buckets/{bucket}/directories", h.handleCreateDirectory).Methods(http.MethodPost)

	r.HandleFunc("/buckets/{bucket}/objects", h.handleUploadObject).Methods(http.MethodPost)
	r.HandleFunc("/buckets/{bucket}/objects", h.handleListObjects).Methods(http.MethodGet)
	r.HandleFunc("/buckets/{bucket}/objects", h.handleDeleteObject).Methods(http.MethodDelete)
	r.HandleFunc("/buckets/{bucket}/object", h.handleDownloadObjectByQuery).Methods(http.MethodGet)
	r.HandleFunc("/buckets/{bucket}/objects/{key}/metadata", h.handleObjectMetadata).Methods(http.MethodGet)
	r.HandleFunc("/buckets/{bucket}/objects/{key:.+}", h.handleDownloadObject).Methods(http.MethodGet)
	r.HandleFunc("/buckets/{bucket}/objects/{key:.+}", h.handleHeadObject).Methods(http.MethodHead)

	r.HandleFunc("/stats", h.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/audit", h.handleAudit).Methods(http.MethodGet)
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "OpenS3",
		"status":  "running",
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCreateBucket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Request body must be JSON with a \"name\" field")
		return
	}

	err := h.backend.CreateBucket(r.Context(), req.Name)
	h.recordAudit(r, audit.ActionCreateBucket, req.Name, "", err)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Bucket created successfully",
		"bucket":  map[string]string{"name": req.Name},
	})
}

func (h *Handler) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.backend.ListBuckets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"buckets": buckets})
}

func (h *Handler) handleHeadBucket(w http.ResponseWriter, r *http.Request) {
	bucket := mux.Vars(r)["bucket"]

	exists, err := h.backend.BucketExists(r.Context(), bucket)
	if err != nil {
		writeError(w, err)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleDeleteBucket(w http.ResponseWriter, r *http.Request) {
	bucket := mux.Vars(r)["bucket"]
	force := r.URL.Query().Get("force") == "true"

	err := h.backend.DeleteBucket(r.Context(), bucket, force)
	h.recordAudit(r, audit.ActionDeleteBucket, bucket, "", err)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.usage != nil {
		if err := h.usage.DropBucket(bucket); err != nil {
			logrus.WithError(err).WithField("bucket", bucket).Warn("Failed to drop usage counters")
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateDirectory(w http.ResponseWriter, r *http.Request) {
	bucket := mux.Vars(r)["bucket"]
	dirPath := r.URL.Query().Get("directory_path")
	if dirPath == "" {
		writeBadRequest(w, "directory_path query parameter is required")
		return
	}

	err := h.backend.CreateDirectory(r.Context(), bucket, dirPath)
	h.recordAudit(r, audit.ActionCreateDirectory, bucket, dirPath, err)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message":        "Directory created successfully",
		"directory_path": dirPath,
	})
}

func (h *Handler) handleUploadObject(w http.ResponseWriter, r *http.Request) {
	bucket := mux.Vars(r)["bucket"]

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeBadRequest(w, "Request must be multipart/form-data with a \"file\" field")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "Missing \"file\" form field")
		return
	}
	defer file.Close()

	key := header.Filename
	contentType := header.Header.Get("Content-Type")

	userMeta, err := parseMetadataField(r.FormValue("json"))
	if err != nil {
		writeBadRequest(w, "Invalid \"json\" form field: expected {\"metadata\": {...}}")
		return
	}

	// Track whether this is a fresh object or an overwrite before writing.
	// Concurrent uploads of the same key can race this check and skew the
	// counters by one; the counters are advisory, not billing-grade.
	var countDelta, priorSize int64 = 1, 0
	if prior, statErr := h.backend.StatObject(r.Context(), bucket, key); statErr == nil {
		countDelta = 0
		priorSize = prior.Size
	}

	info, err := h.backend.PutObject(r.Context(), bucket, key, file, contentType, userMeta)
	h.recordAudit(r, audit.ActionPutObject, bucket, key, err)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.usage != nil {
		if err := h.usage.RecordPut(bucket, countDelta, info.Size-priorSize); err != nil {
			logrus.WithError(err).WithField("bucket", bucket).Warn("Failed to update usage counters")
		}
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":      "Object uploaded successfully",
		"key":          info.Key,
		"bucket":       info.Bucket,
		"size":         info.Size,
		"content_type": info.ContentType,
		"etag":         info.ETag,
		"metadata":     info.Metadata,
	})
}

func (h *Handler) handleListObjects(w http.ResponseWriter, r *http.Request) {
	bucket := mux.Vars(r)["bucket"]
	prefix := r.URL.Query().Get("prefix")

	objects, err := h.backend.ListObjects(r.Context(), bucket, prefix)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"objects": objects})
}

func (h *Handler) handleDownloadObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	h.serveObject(w, r, vars["bucket"], vars["key"])
}

// handleDownloadObjectByQuery is the slash-safe download variant for clients
// whose HTTP stacks normalize path segments.
func (h *Handler) handleDownloadObjectByQuery(w http.ResponseWriter, r *http.Request) {
	bucket := mux.Vars(r)["bucket"]
	key := r.URL.Query().Get("object_key")
	if key == "" {
		writeBadRequest(w, "object_key query parameter is required")
		return
	}
	h.serveObject(w, r, bucket, key)
}

func (h *Handler) serveObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	reader, info, err := h.backend.GetObject(r.Context(), bucket, key)
	if err != nil {
		writeError(w, err)
		return
	}
	defer reader.Close()

	setObjectHeaders(w, info)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(info.Key)))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, reader); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"bucket": bucket,
			"key":    key,
		}).Error("Failed to stream object")
	}
}

func (h *Handler) handleHeadObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	info, err := h.backend.StatObject(r.Context(), vars["bucket"], vars["key"])
	if err != nil {
		// HEAD responses carry no body.
		var storageErr *storage.StorageError
		if errors.As(err, &storageErr) {
			w.WriteHeader(statusForCode(storageErr.Code))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	setObjectHeaders(w, info)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleObjectMetadata(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	info, err := h.backend.StatObject(r.Context(), vars["bucket"], vars["key"])
	if err != nil {
		writeError(w, err)
		return
	}

	metadata := info.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":          info.Key,
		"content_type": info.ContentType,
		"etag":         info.ETag,
		"metadata":     metadata,
	})
}

func (h *Handler) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	bucket := mux.Vars(r)["bucket"]
	key := r.URL.Query().Get("object_key")
	if key == "" {
		writeBadRequest(w, "object_key query parameter is required")
		return
	}

	// Size is needed before removal to keep the usage counters truthful.
	var size int64
	if info, statErr := h.backend.StatObject(r.Context(), bucket, key); statErr == nil {
		size = info.Size
	}

	err := h.backend.DeleteObject(r.Context(), bucket, key)
	h.recordAudit(r, audit.ActionDeleteObject, bucket, key, err)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.usage != nil {
		if err := h.usage.RecordDelete(bucket, size); err != nil {
			logrus.WithError(err).WithField("bucket", bucket).Warn("Failed to update usage counters")
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Object deleted successfully",
		"key":     key,
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if h.usage == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "Usage stats are disabled"})
		return
	}

	usages, err := h.usage.All()
	if err != nil {
		writeError(w, err)
		return
	}
	if usages == nil {
		usages = []stats.BucketUsage{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"buckets": usages})
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	if h.auditLog == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "Audit trail is disabled"})
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		limit = parsed
	}

	events, err := h.auditLog.ListEvents(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// recordAudit logs a mutating operation to the audit trail. Audit failures
// never fail the request.
func (h *Handler) recordAudit(r *http.Request, action audit.Action, bucket, key string, opErr error) {
	if h.auditLog == nil {
		return
	}

	status := "ok"
	statusCode := http.StatusOK
	if opErr != nil {
		var storageErr *storage.StorageError
		if errors.As(opErr, &storageErr) {
			status = storageErr.Code
			statusCode = statusForCode(storageErr.Code)
		} else {
			status = "InternalError"
			statusCode = http.StatusInternalServerError
		}
	}

	event := &audit.Event{
		RequestID:  middleware.RequestID(r.Context()),
		Action:     action,
		Bucket:     bucket,
		Key:        key,
		Status:     status,
		StatusCode: statusCode,
		RemoteAddr: r.RemoteAddr,
	}
	if err := h.auditLog.LogEvent(r.Context(), event); err != nil {
		logrus.WithError(err).WithField("action", action).Warn("Failed to record audit event")
	}
}

func setObjectHeaders(w http.ResponseWriter, info *storage.ObjectInfo) {
	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	if info.ETag != "" {
		w.Header().Set("ETag", fmt.Sprintf("%q", info.ETag))
	}
}

func parseMetadataField(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}

	var parsed struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, err
	}
	return parsed.Metadata, nil
}
