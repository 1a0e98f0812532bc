// auth.go — обработчики публичных endpoints аутентификации.
// POST /api/v1/auth/register — регистрация пользователя
// POST /api/v1/auth/login — вход (Resource Owner Password flow через Keycloak)
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apierrors "github.com/arturkryukov/investlink/user-module/internal/api/errors"
	"github.com/arturkryukov/investlink/user-module/internal/api/middleware"
	"github.com/arturkryukov/investlink/user-module/internal/domain/model"
	"github.com/arturkryukov/investlink/user-module/internal/service"
)

// loginRequest — тело запроса POST /api/v1/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse — ответ успешного входа.
type loginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        *model.User `json:"user"`
}

// Register обрабатывает POST /api/v1/auth/register.
// Создаёт пользователя в Keycloak, назначает realm-роль
// и сохраняет локальную проекцию. Возвращает 201 с созданным пользователем.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса")
		return
	}

	if msg := validateRegistration(&req); msg != "" {
		apierrors.ValidationError(w, msg)
		return
	}

	user, err := h.users.Register(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRole):
			apierrors.ValidationError(w, err.Error())
		default:
			// Причина (конфликт, недоступность Keycloak, ошибка БД)
			// наружу не раскрывается.
			apierrors.InternalError(w, "не удалось создать пользователя")
		}
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login обрабатывает POST /api/v1/auth/login.
// Проверку пароля выполняет Keycloak; в ответе access token
// и локальная проекция пользователя.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса")
		return
	}
	if req.Username == "" || req.Password == "" {
		apierrors.ValidationError(w, "username и password обязательны")
		return
	}

	token, user, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		// ErrInvalidCredentials и ErrLoginFailed наружу не различаются:
		// существование учётной записи не раскрывается.
		apierrors.Unauthorized(w, "неверные учётные данные")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		User:        user,
	})
}

// Me обрабатывает GET /api/v1/auth/me.
// Возвращает локальную проекцию текущего пользователя по preferred_username
// из проверенного токена.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		apierrors.Unauthorized(w, "требуется аутентификация")
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), identity.PreferredUsername)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "пользователь не найден")
			return
		}
		h.logger.Error("Ошибка получения текущего пользователя",
			"username", identity.PreferredUsername, "error", err.Error())
		apierrors.InternalError(w, "внутренняя ошибка")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// validateRegistration проверяет обязательные поля запроса регистрации.
// Возвращает текст ошибки или пустую строку.
func validateRegistration(req *model.RegistrationRequest) string {
	switch {
	case req.Username == "":
		return "username обязателен"
	case req.Password == "":
		return "password обязателен"
	case req.Email == "":
		return "email обязателен"
	case req.Role == "":
		return "role обязательна"
	case req.Phone == "":
		return "phone обязателен"
	}
	return ""
}
