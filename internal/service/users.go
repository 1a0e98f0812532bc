// Пакет service — бизнес-логика User Module.
// users.go — регистрация, вход и запросы пользователей.
// Регистрация создаёт пользователя сначала в Keycloak, затем локально;
// вход делегирует проверку пароля Keycloak и читает локальную проекцию.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/arturkryukov/investlink/user-module/internal/domain/model"
	"github.com/arturkryukov/investlink/user-module/internal/domain/rbac"
	"github.com/arturkryukov/investlink/user-module/internal/keycloak"
	"github.com/arturkryukov/investlink/user-module/internal/repository"
)

// IdentityProvider — операции Keycloak, используемые сервисом.
// Реализуется *keycloak.Client; в тестах подменяется mock'ом.
type IdentityProvider interface {
	// GetServiceToken возвращает service account token (client_credentials).
	GetServiceToken(ctx context.Context) (string, error)
	// CreateUser создаёт пользователя в Keycloak, возвращает его Keycloak ID.
	CreateUser(ctx context.Context, user *keycloak.UserRepresentation) (string, error)
	// ResolveRealmRole ищет realm-роль по имени (точное совпадение).
	ResolveRealmRole(ctx context.Context, name string) (*keycloak.RoleRepresentation, error)
	// AssignRealmRole назначает realm-роль пользователю Keycloak.
	AssignRealmRole(ctx context.Context, userID string, role *keycloak.RoleRepresentation) error
	// PasswordGrant обменивает логин/пароль на access token.
	PasswordGrant(ctx context.Context, username, password string) (string, error)
}

// UserService — сервис пользователей платформы.
// Источник учётных данных — Keycloak, локальная БД хранит проекцию.
type UserService struct {
	idp      IdentityProvider
	userRepo repository.UserRepository
	logger   *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(idp IdentityProvider, userRepo repository.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{
		idp:      idp,
		userRepo: userRepo,
		logger:   logger.With(slog.String("component", "user_service")),
	}
}

// Register регистрирует нового пользователя: создаёт его в Keycloak
// с начальным паролем, назначает realm-роль и сохраняет локальную проекцию.
// Порядок шагов строгий: service token → создание пользователя →
// поиск роли → назначение роли → локальное сохранение. Любая ошибка
// до локального сохранения прерывает регистрацию: локальная запись
// не создаётся, наружу уходит единственная обобщённая ошибка
// ErrRegistrationFailed (причина — только в логах).
func (s *UserService) Register(ctx context.Context, req *model.RegistrationRequest) (*model.User, error) {
	if !rbac.IsRegistrableRole(req.Role) {
		return nil, ErrInvalidRole
	}

	// 1. Service token — проверяем доступность Keycloak до побочных эффектов
	if _, err := s.idp.GetServiceToken(ctx); err != nil {
		s.logger.Error("Регистрация: Keycloak недоступен",
			slog.String("username", req.Username),
			slog.String("error", err.Error()),
		)
		return nil, ErrRegistrationFailed
	}

	// 2. Создание пользователя в Keycloak
	kcUserID, err := s.idp.CreateUser(ctx, &keycloak.UserRepresentation{
		Username:  req.Username,
		Email:     req.Email,
		Enabled:   true,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Attributes: map[string][]string{
			"Phone": {req.Phone},
		},
		Credentials: []keycloak.CredentialRepresentation{
			{Type: "password", Value: req.Password, Temporary: false},
		},
	})
	if err != nil {
		s.logger.Error("Регистрация: ошибка создания пользователя в Keycloak",
			slog.String("username", req.Username),
			slog.String("error", err.Error()),
		)
		return nil, ErrRegistrationFailed
	}

	// 3-4. Поиск и назначение роли. При ошибке пользователь Keycloak
	// остаётся без роли и без локальной записи — компенсирующее удаление
	// не выполняется, запись в логе служит для ручной сверки.
	role, err := s.idp.ResolveRealmRole(ctx, req.Role)
	if err != nil {
		s.logger.Error("Регистрация: роль не найдена, пользователь Keycloak осиротел",
			slog.String("username", req.Username),
			slog.String("keycloak_user_id", kcUserID),
			slog.String("role", req.Role),
			slog.String("error", err.Error()),
		)
		return nil, ErrRegistrationFailed
	}

	if err := s.idp.AssignRealmRole(ctx, kcUserID, role); err != nil {
		s.logger.Error("Регистрация: ошибка назначения роли, пользователь Keycloak осиротел",
			slog.String("username", req.Username),
			slog.String("keycloak_user_id", kcUserID),
			slog.String("role", req.Role),
			slog.String("error", err.Error()),
		)
		return nil, ErrRegistrationFailed
	}

	// 5. Локальная проекция. Открытый пароль не сохраняется — только bcrypt-хэш.
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("Регистрация: ошибка хэширования пароля",
			slog.String("username", req.Username),
			slog.String("error", err.Error()),
		)
		return nil, ErrRegistrationFailed
	}

	user := &model.User{
		Username:           req.Username,
		PasswordHash:       string(hash),
		Email:              req.Email,
		Role:               req.Role,
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Phone:              req.Phone,
		FieldOfInterest:    req.FieldOfInterest,
		CompanyName:        req.CompanyName,
		CompanyDescription: req.CompanyDescription,
		Services:           req.Services,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// Конфликт уникальности (гонка двух регистраций) и прочие ошибки БД
		// наружу не различаются; пользователь Keycloak уже создан и осиротел.
		s.logger.Error("Регистрация: ошибка локального сохранения, пользователь Keycloak осиротел",
			slog.String("username", req.Username),
			slog.String("keycloak_user_id", kcUserID),
			slog.String("error", err.Error()),
		)
		return nil, ErrRegistrationFailed
	}

	s.logger.Info("Пользователь зарегистрирован",
		slog.String("username", user.Username),
		slog.String("role", user.Role),
		slog.String("keycloak_user_id", kcUserID),
	)

	return user, nil
}

// Login выполняет вход: делегирует проверку пароля Keycloak
// (Resource Owner Password flow) и читает локальную проекцию.
// Отказ Keycloak в учётных данных → ErrInvalidCredentials; любая другая
// ошибка, включая отсутствие локальной записи при успешной аутентификации
// в Keycloak, → ErrLoginFailed (существование учётной записи не раскрывается).
func (s *UserService) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	token, err := s.idp.PasswordGrant(ctx, username, password)
	if err != nil {
		if errors.Is(err, keycloak.ErrInvalidCredentials) {
			s.logger.Warn("Вход отклонён: неверные учётные данные",
				slog.String("username", username),
			)
			return "", nil, ErrInvalidCredentials
		}
		s.logger.Error("Вход: ошибка Keycloak",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return "", nil, ErrLoginFailed
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Учётная запись есть в Keycloak, но нет локально —
			// авто-создание не выполняется, вход отклоняется.
			s.logger.Warn("Вход отклонён: нет локальной записи",
				slog.String("username", username),
			)
			return "", nil, ErrLoginFailed
		}
		s.logger.Error("Вход: ошибка чтения локальной записи",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return "", nil, ErrLoginFailed
	}

	return token, user, nil
}

// GetUserByUsername возвращает локальную проекцию пользователя.
// Если запись не найдена — ErrNotFound.
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return user, nil
}

// ListUsers возвращает локальные проекции пользователей с пагинацией.
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*model.User, int, error) {
	users, err := s.userRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("получение списка пользователей: %w", err)
	}

	total, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт пользователей: %w", err)
	}

	return users, total, nil
}
