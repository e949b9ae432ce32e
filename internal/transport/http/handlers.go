package http

import (
	"encoding/json"
	"net/http"

	"github.com/mkozyreva/accounts-service/internal/service"
)

// Handlers агрегирует зависимости REST-эндпойнтов.
type Handlers struct {
	svc     *service.Service
	cookies cookieWriter
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}
