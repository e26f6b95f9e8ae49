// Package handlers implements the REST endpoints.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	apperrors "lens-backend/pkg/errors"
)

// maxJSONBody bounds JSON request bodies; uploads go through multipart.
const maxJSONBody = 1 << 20

type base struct {
	logger *zap.Logger
	errs   *apperrors.ErrorHandler
}

func (b base) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		b.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func (b base) decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		return apperrors.NewValidationError("invalid request body: " + err.Error())
	}
	return nil
}
