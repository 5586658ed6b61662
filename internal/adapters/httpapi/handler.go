package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tg-media-bot/internal/domain"
	httpinfra "tg-media-bot/internal/infra/http"
	"tg-media-bot/internal/usecase/media"
	"tg-media-bot/internal/usecase/stats"
	"tg-media-bot/internal/usecase/users"
)

var errBadRequest = errors.New("bad request")

// HealthFunc проверяет доступность хранилища.
type HealthFunc func(ctx context.Context) error

// Handler обслуживает административный API.
type Handler struct {
	users  *users.Service
	stats  *stats.Service
	media  *media.Service
	health HealthFunc
	log    zerolog.Logger
}

// NewHandler создаёт обработчик. health может быть nil.
func NewHandler(usersUC *users.Service, statsUC *stats.Service, mediaUC *media.Service, health HealthFunc, log zerolog.Logger) *Handler {
	return &Handler{users: usersUC, stats: statsUC, media: mediaUC, health: health, log: log}
}

// Routes регистрирует маршруты. auth применяется ко всем /api/v1 маршрутам.
func (h *Handler) Routes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Get("/healthz", h.healthz)
	r.Route("/api/v1", func(api chi.Router) {
		if auth != nil {
			api.Use(auth)
		}
		api.Get("/stats", h.snapshot)
		api.Get("/stats/downloads", h.downloads)
		api.Get("/users", h.listUsers)
		api.Get("/users/by-username/{username}", h.usersByUsername)
		api.Get("/users/{id}", h.getUser)
		api.Post("/users/{id}/{action}", h.changeStatus)
		api.Put("/users/{id}/captions", h.setCaptions)
		api.Delete("/users/{id}", h.removeUser)
		api.Get("/media", h.lookupMedia)
	})
}

type userResponse struct {
	UserID   int64  `json:"user_id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	ChatType string `json:"chat_type,omitempty"`
	Language string `json:"language,omitempty"`
	Status   string `json:"status"`
	Captions string `json:"captions,omitempty"`
}

type reportResponse struct {
	Period string           `json:"period"`
	Since  time.Time        `json:"since"`
	Total  int64            `json:"total"`
	Days   map[string]int64 `json:"days"`
}

type snapshotResponse struct {
	Users struct {
		Total    int64 `json:"total"`
		Active   int64 `json:"active"`
		Inactive int64 `json:"inactive"`
	} `json:"users"`
	CachedMedia int64          `json:"cached_media"`
	Downloads   reportResponse `json:"downloads"`
	Partial     bool           `json:"partial"`
	Text        string         `json:"text"`
}

type mediaResponse struct {
	URL       string     `json:"url"`
	FileID    string     `json:"file_id"`
	MediaType string     `json:"media_type,omitempty"`
	AddedAt   *time.Time `json:"added_at,omitempty"`
}

type captionsRequest struct {
	Captions string `json:"captions"`
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			httpinfra.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.stats.Snapshot(r.Context(), periodParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var resp snapshotResponse
	resp.Users.Total = snap.Users.Total
	resp.Users.Active = snap.Users.Active
	resp.Users.Inactive = snap.Users.Inactive
	resp.CachedMedia = snap.CachedMedia
	resp.Downloads = toReport(snap.Downloads)
	resp.Partial = snap.Partial
	resp.Text = stats.Format(snap)
	httpinfra.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) downloads(w http.ResponseWriter, r *http.Request) {
	report, err := h.stats.Downloads(r.Context(), periodParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toReport(report))
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	all, err := h.users.All(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]userResponse, 0, len(all))
	for _, u := range all {
		out = append(out, toUser(u))
	}
	httpinfra.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toUser(user))
}

func (h *Handler) usersByUsername(w http.ResponseWriter, r *http.Request) {
	infos, err := h.users.InfoByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(infos) == 0 {
		h.fail(w, r, fmt.Errorf("username %q: %w", chi.URLParam(r, "username"), domain.ErrNotFound))
		return
	}
	out := make([]userResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, userResponse{UserID: info.UserID, Name: info.Name, Username: info.Username, Status: info.Status.String()})
	}
	httpinfra.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var apply func(context.Context, int64) error
	switch chi.URLParam(r, "action") {
	case "activate":
		apply = h.users.Activate
	case "deactivate":
		apply = h.users.Deactivate
	case "ban":
		apply = h.users.Ban
	default:
		httpinfra.WriteError(w, http.StatusNotFound, errors.New("неизвестное действие"))
		return
	}
	if err := apply(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	status, err := h.users.Status(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"user_id": id, "status": status.String()})
}

func (h *Handler) setCaptions(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer r.Body.Close()
	var req captionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, fmt.Errorf("%w: invalid request body", errBadRequest))
		return
	}
	if err := h.users.SetCaptions(r.Context(), id, req.Captions); err != nil {
		h.fail(w, r, err)
		return
	}
	value, err := h.users.Captions(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"user_id": id, "captions": value})
}

func (h *Handler) removeUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.users.Remove(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lookupMedia(w http.ResponseWriter, r *http.Request) {
	found, err := h.media.Lookup(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := mediaResponse{URL: found.URL, FileID: found.FileID, MediaType: found.MediaType}
	if !found.AddedAt.IsZero() {
		added := found.AddedAt
		resp.AddedAt = &added
	}
	httpinfra.WriteJSON(w, http.StatusOK, resp)
}

// fail переводит доменную ошибку в HTTP статус.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", httpinfra.RequestID(r)).Msg("api: ошибка обработки")
	}
	httpinfra.WriteJSON(w, status, httpinfra.ErrorResponse{Error: err.Error(), RequestID: httpinfra.RequestID(r)})
}

// StatusFor возвращает HTTP статус для ошибки.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidPeriod),
		errors.Is(err, domain.ErrInvalidCaptions),
		errors.Is(err, domain.ErrEmptyURL):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func periodParam(r *http.Request) string {
	if p := r.URL.Query().Get("period"); p != "" {
		return p
	}
	return string(domain.PeriodWeek)
}

func userIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid user id %q", errBadRequest, raw)
	}
	return id, nil
}

func toUser(u domain.User) userResponse {
	return userResponse{
		UserID:   u.UserID,
		Name:     u.Name,
		Username: u.Username,
		ChatType: u.ChatType,
		Language: u.Language,
		Status:   u.Status.String(),
		Captions: u.Captions,
	}
}

func toReport(report domain.Report) reportResponse {
	return reportResponse{
		Period: string(report.Period),
		Since:  report.Since,
		Total:  report.Total(),
		Days:   report.ByDate(),
	}
}
