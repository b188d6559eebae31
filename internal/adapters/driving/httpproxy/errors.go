package httpproxy

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
)

// kindToStatus maps a domain.Kind to the HTTP status the proxy answers
// with, per the error handling design's disposition table.
var kindToStatus = map[domain.Kind]int{
	domain.KindBadInput:           http.StatusUnprocessableEntity,
	domain.KindInvalidUpload:      http.StatusBadRequest,
	domain.KindUnknownHandle:      http.StatusNotFound,
	domain.KindExtractFailed:      http.StatusBadRequest,
	domain.KindLowYield:           http.StatusBadRequest,
	domain.KindEmbedFailed:        http.StatusInternalServerError,
	domain.KindIndexUnavailable:   http.StatusServiceUnavailable,
	domain.KindModelTransient:     http.StatusBadGateway,
	domain.KindModelPermanent:     http.StatusBadGateway,
	domain.KindModelTimeout:       http.StatusGatewayTimeout,
	domain.KindBackendUnavailable: http.StatusServiceUnavailable,
	domain.KindInternal:           http.StatusInternalServerError,
}

type errorBody struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// writeError maps err to a status code and writes {kind, detail} as the
// body. A non-domain error is reported as internal without leaking its
// message to the client.
func writeError(w http.ResponseWriter, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		writeErrorKind(w, domain.KindInternal, "internal error")
		return
	}
	writeErrorKind(w, derr.Kind, derr.Detail)
}

func writeErrorKind(w http.ResponseWriter, kind domain.Kind, detail string) {
	status, ok := kindToStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Kind: string(kind), Detail: detail}) //nolint:errcheck
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}
