// auth.go — JWT middleware для аутентификации и авторизации User Module.
// Валидирует подпись токена через JWKS Keycloak (keyfunc/jwkset), проверяет
// expiry, issuer, audience и алгоритм подписи, извлекает роли из
// realm_access.roles и resource_access.<client>.roles.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/arturkryukov/investlink/user-module/internal/api/errors"
	"github.com/arturkryukov/investlink/user-module/internal/domain/rbac"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyIdentity — проверенная личность в контексте запроса.
	ContextKeyIdentity contextKey = "verified_identity"
)

// allowedAlgorithms — допустимые алгоритмы подписи JWT.
// Токен с любым другим алгоритмом отклоняется до проверки подписи —
// защита от подмены алгоритма (например, none или HS256 с публичным ключом).
var allowedAlgorithms = []string{"RS256"}

// Identity — проверенная личность вызывающего из Keycloak JWT.
// Помещается в контекст запроса для downstream handlers.
// Живёт один запрос, нигде не сохраняется.
type Identity struct {
	// Subject — sub из JWT (Keycloak user ID).
	Subject string
	// PreferredUsername — preferred_username из JWT.
	PreferredUsername string
	// Email — email из JWT.
	Email string
	// Roles — объединение realm_access.roles и resource_access.<client>.roles.
	Roles []string
}

// keycloakClaims — raw claims из Keycloak JWT для парсинга.
// Отсутствующие вложенные claims дают пустые наборы ролей, не ошибку.
type keycloakClaims struct {
	jwt.RegisteredClaims
	// PreferredUsername — имя пользователя.
	PreferredUsername string `json:"preferred_username"`
	// Email — электронная почта.
	Email string `json:"email"`
	// RealmAccess — вложенная структура realm_access.roles.
	RealmAccess *roleContainer `json:"realm_access,omitempty"`
	// ResourceAccess — роли по клиентам: resource_access.<client>.roles.
	ResourceAccess map[string]roleContainer `json:"resource_access,omitempty"`
}

// roleContainer — вложенный объект {"roles": [...]} в Keycloak JWT.
type roleContainer struct {
	Roles []string `json:"roles"`
}

// JWTAuth — middleware для JWT-аутентификации через JWKS Keycloak.
type JWTAuth struct {
	jwks           keyfunc.Keyfunc
	logger         *slog.Logger
	issuer         string
	audiences      []string
	resourceClient string
	jwtLeeway      time.Duration
}

// NewJWTAuth создаёт JWT middleware с JWKS из Keycloak.
// jwksURL — URL к JWKS endpoint Keycloak.
// issuer — ожидаемый issuer JWT (обычно https://keycloak/realms/investlink).
// audiences — допустимые audience; aud токена должен пересекаться с этим списком.
// resourceClient — клиент, чьи роли из resource_access учитываются.
// Первый запрос JWKS выполняется синхронно: если Keycloak недоступен
// при старте процесса — конструктор возвращает ошибку (fail fast).
func NewJWTAuth(
	jwksURL string,
	issuer string,
	audiences []string,
	resourceClient string,
	jwksClientTimeout time.Duration,
	jwksRefreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	// JWKS Storage с фоновым обновлением. Интервал обновления ограничивает
	// частоту обращений к Keycloak — ключи кэшируются между обновлениями.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:          &http.Client{Timeout: jwksClientTimeout},
		RefreshInterval: jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return &JWTAuth{
		jwks:           k,
		logger:         logger.With(slog.String("component", "jwt_auth")),
		issuer:         issuer,
		audiences:      audiences,
		resourceClient: resourceClient,
		jwtLeeway:      jwtLeeway,
	}, nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewJWTAuthWithKeyfunc(
	kf keyfunc.Keyfunc,
	issuer string,
	audiences []string,
	resourceClient string,
	logger *slog.Logger,
) *JWTAuth {
	return &JWTAuth{
		jwks:           kf,
		logger:         logger.With(slog.String("component", "jwt_auth")),
		issuer:         issuer,
		audiences:      audiences,
		resourceClient: resourceClient,
	}
}

// Verify валидирует bearer token и возвращает проверенную личность.
// Любая ошибка валидации (подпись, алгоритм, expiry, issuer, audience,
// искажённый токен) → ошибка; вызывающий отвечает 401.
func (j *JWTAuth) Verify(ctx context.Context, tokenString string) (*Identity, error) {
	rawClaims := &keycloakClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(allowedAlgorithms),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.jwtLeeway),
	}
	if j.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, rawClaims, j.jwks.KeyfuncCtx(ctx), parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("валидация JWT: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("невалидный токен")
	}

	// Проверяем audience: пересечение aud токена с допустимым списком.
	// jwt.WithAudience проверяет только одно значение, Keycloak же выдаёт
	// токены с несколькими aud — проверяем пересечение вручную.
	if err := j.checkAudience(rawClaims.Audience); err != nil {
		return nil, err
	}

	subject, err := rawClaims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("отсутствует sub в токене")
	}

	return &Identity{
		Subject:           subject,
		PreferredUsername: rawClaims.PreferredUsername,
		Email:             rawClaims.Email,
		Roles:             j.extractRoles(rawClaims),
	}, nil
}

// checkAudience проверяет, что aud токена пересекается с допустимым списком.
func (j *JWTAuth) checkAudience(aud jwt.ClaimStrings) error {
	if len(j.audiences) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(j.audiences))
	for _, a := range j.audiences {
		allowed[a] = true
	}
	for _, a := range aud {
		if allowed[a] {
			return nil
		}
	}
	return fmt.Errorf("audience токена %v не входит в допустимый список", aud)
}

// extractRoles собирает роли из realm_access.roles и resource_access.<client>.roles.
// Отсутствующие claims дают пустой вклад, не ошибку.
func (j *JWTAuth) extractRoles(raw *keycloakClaims) []string {
	var roles []string
	if raw.RealmAccess != nil {
		roles = append(roles, raw.RealmAccess.Roles...)
	}
	if j.resourceClient != "" {
		if client, ok := raw.ResourceAccess[j.resourceClient]; ok {
			roles = append(roles, client.Roles...)
		}
	}
	return roles
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, валидирует его и помещает Identity в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем Bearer token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := parts[1]
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			identity, err := j.Verify(r.Context(), tokenString)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			// Помещаем identity в контекст
			ctx := context.WithValue(r.Context(), ContextKeyIdentity, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// --- RBAC middleware ---

// RequireAnyRole возвращает middleware, требующий хотя бы одну из указанных
// ролей (пересечение ролей субъекта и требуемого набора).
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireAnyRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil {
				apierrors.Unauthorized(w, "Отсутствует identity в контексте")
				return
			}

			if !rbac.Authorize(identity.Roles, roles) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", strings.Join(roles, " или ")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// IdentityFromContext извлекает Identity из контекста запроса.
// Возвращает nil, если identity не найдена.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(ContextKeyIdentity).(*Identity)
	return identity
}

// Close освобождает ресурсы JWT middleware.
func (j *JWTAuth) Close() {
	// keyfunc v3 не требует явного закрытия
}
