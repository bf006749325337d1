// Package helpers contiene utilidades de request/response compartidas por los controllers.
package helpers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	httperrors "github.com/LiuPacific/geoserver/internal/http/errors"
)

// MaxBodyBytes limita el body de los requests.
const MaxBodyBytes = 1 << 20

// ReadBody lee el body completo con límite de MaxBodyBytes.
// Si requireJSON, valida el Content-Type.
func ReadBody(w http.ResponseWriter, r *http.Request, requireJSON bool) ([]byte, error) {
	if requireJSON {
		ct := strings.ToLower(r.Header.Get("Content-Type"))
		if !strings.Contains(ct, "application/json") {
			return nil, httperrors.ErrUnsupportedMediaType
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	b, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, httperrors.ErrBodyTooLarge
		}
		return nil, httperrors.ErrBadRequest.WithCause(err)
	}
	if len(b) == 0 {
		return nil, httperrors.ErrBadRequest.WithDetail("empty body")
	}
	return b, nil
}

// WriteJSON escribe una respuesta JSON estándar.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
