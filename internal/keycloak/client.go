// client.go — HTTP-клиент к Keycloak.
// Реализует автоматическое получение service account token через Client
// Credentials flow с кэшированием (обновление за 30s до expiration),
// Resource Owner Password flow для логина пользователей и операции
// Admin REST API: CreateUser, ListRealmRoles, AssignRealmRole.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Ошибки клиента Keycloak.
var (
	// ErrInvalidCredentials — Keycloak отверг логин/пароль (401 на password grant).
	ErrInvalidCredentials = errors.New("неверные учётные данные")
	// ErrRoleNotFound — realm-роль с указанным именем не найдена в каталоге.
	ErrRoleNotFound = errors.New("роль не найдена в Keycloak")
)

// Client — HTTP-клиент к Keycloak.
type Client struct {
	baseURL      string // Базовый URL Keycloak (без trailing slash)
	realm        string // Имя realm
	clientID     string // Client ID для token endpoint
	clientSecret string // Client Secret

	httpClient *http.Client
	logger     *slog.Logger

	// Кэш service account token
	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New создаёт клиент к Keycloak.
// baseURL — базовый URL Keycloak (например, https://keycloak.investlink.lan).
// realm — имя realm (например, investlink).
// clientID, clientSecret — credentials клиента user-module.
// httpClient — HTTP-клиент (может содержать TLS конфигурацию).
func New(baseURL, realm, clientID, clientSecret string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		logger:       logger.With(slog.String("component", "keycloak_client")),
	}
}

// --- Token endpoint ---

// tokenEndpoint возвращает URL endpoint'а получения токена.
func (c *Client) tokenEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.baseURL, c.realm)
}

// adminBaseURL возвращает базовый URL Admin REST API для realm.
func (c *Client) adminBaseURL() string {
	return fmt.Sprintf("%s/admin/realms/%s", c.baseURL, c.realm)
}

// GetServiceToken возвращает актуальный service account token,
// обновляя его при необходимости. Токен обновляется за 30 секунд до истечения.
func (c *Client) GetServiceToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Проверяем кэш: если токен валиден ещё 30 секунд — используем его
	if c.accessToken != "" && time.Now().Add(30*time.Second).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	token, err := c.requestToken(ctx, url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	})
	if err != nil {
		return "", err
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	c.logger.Debug("Service token Keycloak обновлён",
		slog.Time("expires_at", c.tokenExpiry),
	)

	return c.accessToken, nil
}

// PasswordGrant обменивает логин/пароль пользователя на access token
// (Resource Owner Password flow). На 401 возвращает ErrInvalidCredentials,
// остальные ошибки — как есть.
func (c *Client) PasswordGrant(ctx context.Context, username, password string) (string, error) {
	token, err := c.requestToken(ctx, url.Values{
		"grant_type":    {"password"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"username":      {username},
		"password":      {password},
	})
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// requestToken выполняет запрос к token endpoint с указанными параметрами.
func (c *Client) requestToken(ctx context.Context, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("создание запроса токена: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос токена Keycloak: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Keycloak вернул статус %d при запросе токена: %s", resp.StatusCode, string(body))
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("декодирование токена Keycloak: %w", err)
	}

	return &token, nil
}

// --- HTTP helpers ---

// doAuthorized выполняет HTTP-запрос к Admin REST API с service account token.
func (c *Client) doAuthorized(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, err := c.GetServiceToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение service token: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	reqURL := c.adminBaseURL() + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// decodeResponse декодирует JSON ответ в target.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Keycloak API вернул статус %d: %s", resp.StatusCode, string(body))
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("декодирование ответа Keycloak: %w", err)
		}
	}

	return nil
}

// --- Users API ---

// CreateUser создаёт пользователя в Keycloak с начальным паролем.
// Возвращает Keycloak ID созданного пользователя — последний сегмент
// Location header ответа.
func (c *Client) CreateUser(ctx context.Context, user *UserRepresentation) (string, error) {
	resp, err := c.doAuthorized(ctx, http.MethodPost, "/users", user)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("CreateUser: Keycloak вернул статус %d: %s", resp.StatusCode, string(body))
	}

	// Keycloak возвращает Location header с ID созданного ресурса
	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("CreateUser: отсутствует Location header в ответе")
	}

	// Извлекаем ID из Location: .../users/{id}
	parts := strings.Split(location, "/")
	id := parts[len(parts)-1]
	if id == "" {
		return "", fmt.Errorf("CreateUser: не удалось извлечь ID из Location: %s", location)
	}

	return id, nil
}

// --- Roles API ---

// ListRealmRoles возвращает каталог realm-ролей.
func (c *Client) ListRealmRoles(ctx context.Context) ([]RoleRepresentation, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "/roles", nil)
	if err != nil {
		return nil, err
	}

	var roles []RoleRepresentation
	if err := decodeResponse(resp, &roles); err != nil {
		return nil, fmt.Errorf("ListRealmRoles: %w", err)
	}

	return roles, nil
}

// ResolveRealmRole ищет realm-роль по имени (точное совпадение,
// с учётом регистра). Если роль не найдена — ErrRoleNotFound.
func (c *Client) ResolveRealmRole(ctx context.Context, name string) (*RoleRepresentation, error) {
	roles, err := c.ListRealmRoles(ctx)
	if err != nil {
		return nil, err
	}

	for i := range roles {
		if roles[i].Name == name {
			return &roles[i], nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, name)
}

// AssignRealmRole назначает realm-роль пользователю Keycloak.
func (c *Client) AssignRealmRole(ctx context.Context, userID string, role *RoleRepresentation) error {
	path := fmt.Sprintf("/users/%s/role-mappings/realm", userID)
	resp, err := c.doAuthorized(ctx, http.MethodPost, path, []RoleRepresentation{*role})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("AssignRealmRole: Keycloak вернул статус %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// --- Readiness checker ---

// CheckReady проверяет доступность Keycloak через запрос service token.
// Реализует handlers.ReadinessChecker.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.GetServiceToken(ctx); err != nil {
		return "fail", fmt.Sprintf("Keycloak недоступен: %v", err)
	}

	return "ok", fmt.Sprintf("Realm %s доступен", c.realm)
}
