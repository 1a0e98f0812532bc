// users.go — обработчики защищённых endpoints пользователей.
// GET /api/v1/users/{username} — профиль пользователя (любая роль платформы)
// GET /api/v1/users — список пользователей (только Administrator)
package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/investlink/user-module/internal/api/errors"
	"github.com/arturkryukov/investlink/user-module/internal/domain/model"
	"github.com/arturkryukov/investlink/user-module/internal/service"
)

// userListResponse — ответ списка пользователей с пагинацией.
type userListResponse struct {
	Users  []*model.User `json:"users"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// GetUserByUsername обрабатывает GET /api/v1/users/{username}.
func (h *APIHandler) GetUserByUsername(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == "" {
		apierrors.ValidationError(w, "username обязателен")
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "пользователь не найден")
			return
		}
		h.logger.Error("Ошибка получения пользователя",
			"username", username, "error", err.Error())
		apierrors.InternalError(w, "внутренняя ошибка")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// ListUsers обрабатывает GET /api/v1/users.
// Поддерживает пагинацию через query-параметры limit и offset.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	users, total, err := h.users.ListUsers(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Ошибка получения списка пользователей", "error", err.Error())
		apierrors.InternalError(w, "внутренняя ошибка")
		return
	}

	writeJSON(w, http.StatusOK, userListResponse{
		Users:  users,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}
