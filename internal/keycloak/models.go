// Пакет keycloak — HTTP-клиент к Keycloak (token endpoint + Admin REST API).
// models.go — модели данных Keycloak.
package keycloak

// TokenResponse — ответ token endpoint (client_credentials или password grant).
type TokenResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // G117: структура токена OAuth2
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// UserRepresentation — пользователь, создаваемый в Keycloak.
// Поля соответствуют Keycloak Admin REST API.
type UserRepresentation struct {
	Username   string              `json:"username"`
	Email      string              `json:"email"`
	Enabled    bool                `json:"enabled"`
	FirstName  string              `json:"firstName,omitempty"`
	LastName   string              `json:"lastName,omitempty"`
	Attributes map[string][]string `json:"attributes,omitempty"`
	// Credentials — начальный пароль пользователя (type=password, temporary=false).
	Credentials []CredentialRepresentation `json:"credentials,omitempty"`
}

// CredentialRepresentation — учётные данные пользователя Keycloak.
type CredentialRepresentation struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// RoleRepresentation — realm-роль Keycloak.
// Используется и при чтении каталога ролей, и при назначении роли пользователю.
type RoleRepresentation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
