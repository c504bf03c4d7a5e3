package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/SourceBox-LLC/OpenS3-server/internal/storage"
)

// errorResponse is the JSON error body. The "detail" field name matches the
// dialect clients already parse.
type errorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError maps storage errors onto HTTP status codes. Unexpected failures
// always surface as 500, never as not-found.
func writeError(w http.ResponseWriter, err error) {
	var storageErr *storage.StorageError
	if errors.As(err, &storageErr) {
		writeJSON(w, statusForCode(storageErr.Code), errorResponse{
			Detail: storageErr.Message,
			Code:   storageErr.Code,
		})
		return
	}

	logrus.WithError(err).Error("Unexpected error handling request")
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Detail: "Internal server error",
	})
}

func statusForCode(code string) int {
	switch code {
	case "InvalidBucketName", "InvalidKey":
		return http.StatusBadRequest
	case "BucketNotFound", "ObjectNotFound":
		return http.StatusNotFound
	case "BucketAlreadyExists", "BucketNotEmpty":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeBadRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Detail: detail})
}
