package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// ErrInvalidInitData возвращается, если подпись initData не сошлась.
var ErrInvalidInitData = errors.New("invalid init_data")

// InitDataHeader содержит initData WebApp.
const InitDataHeader = "X-Telegram-Init-Data"

// AdminTokenHeader содержит статический токен администратора.
const AdminTokenHeader = "X-Admin-Token"

type ctxKey struct{}

// AdminAuthMiddleware пропускает запрос, если передан верный X-Admin-Token или
// подписанный initData WebApp от пользователя, для которого isAdmin вернул true.
func AdminAuthMiddleware(botToken, adminToken string, isAdmin func(int64) bool) func(http.Handler) http.Handler {
	secret := webAppSecret(botToken)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := r.Header.Get(AdminTokenHeader); token != "" && adminToken != "" {
				if subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, http.StatusUnauthorized, errors.New("токен недействителен"))
				return
			}
			initData := r.Header.Get(InitDataHeader)
			if initData == "" {
				initData = r.URL.Query().Get("init_data")
			}
			if initData == "" {
				WriteError(w, http.StatusUnauthorized, errors.New("init_data отсутствует"))
				return
			}
			userID, err := ValidateInitData(initData, secret)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, errors.New("подпись недействительна"))
				return
			}
			if isAdmin == nil || !isAdmin(userID) {
				WriteError(w, http.StatusForbidden, errors.New("доступ только для администраторов"))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
		})
	}
}

// AdminID возвращает id администратора, прошедшего проверку initData.
func AdminID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKey{}).(int64)
	return id, ok
}

func webAppSecret(botToken string) []byte {
	h := hmac.New(sha256.New, []byte("WebAppData"))
	h.Write([]byte(botToken))
	return h.Sum(nil)
}

// SignInitData подписывает набор полей так же, как это делает Telegram.
func SignInitData(values url.Values, botToken string) string {
	values.Del("hash")
	h := hmac.New(sha256.New, webAppSecret(botToken))
	h.Write([]byte(dataCheckString(values)))
	values.Set("hash", hex.EncodeToString(h.Sum(nil)))
	return values.Encode()
}

// ValidateInitData проверяет подпись и возвращает id пользователя из поля user.
func ValidateInitData(initData string, secret []byte) (int64, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0, ErrInvalidInitData
	}
	expected, err := hex.DecodeString(values.Get("hash"))
	if err != nil || len(expected) == 0 {
		return 0, ErrInvalidInitData
	}
	values.Del("hash")
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(dataCheckString(values)))
	if !hmac.Equal(h.Sum(nil), expected) {
		return 0, ErrInvalidInitData
	}
	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return 0, ErrInvalidInitData
	}
	return user.ID, nil
}

func dataCheckString(values url.Values) string {
	parts := make([]string, 0, len(values))
	for key := range values {
		parts = append(parts, key+"="+values.Get(key))
	}
	sort.Strings(parts)
	return strings.Join(parts, "\n")
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, ErrorResponse{Error: err.Error()})
}

// WriteJSON отправляет JSON ответ.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
