// Пакет model — доменные модели User Module.
package model

import "time"

// User — локальная проекция пользователя платформы InvestLink.
// Источник учётных данных — Keycloak; локальная запись хранит
// прикладные поля (компания, сфера интересов) для запросов платформы.
type User struct {
	// ID — UUID записи (назначается PostgreSQL)
	ID string `json:"id"`
	// Username — имя пользователя (уникальное, совпадает с username в Keycloak)
	Username string `json:"username"`
	// PasswordHash — bcrypt-хэш пароля. Аутентификация идёт через Keycloak,
	// локально хранится только хэш — открытый пароль не сохраняется никогда.
	PasswordHash string `json:"-"`
	// Email — адрес электронной почты (уникальный)
	Email string `json:"email"`
	// Role — роль платформы (Entrepreneur, Investor)
	Role string `json:"role"`
	// FirstName — имя (опционально)
	FirstName string `json:"firstName,omitempty"`
	// LastName — фамилия (опционально)
	LastName string `json:"lastName,omitempty"`
	// Phone — номер телефона (уникальный)
	Phone string `json:"phone"`
	// FieldOfInterest — сфера интересов
	FieldOfInterest string `json:"fieldOfInterest,omitempty"`
	// CompanyName — название компании (опционально)
	CompanyName string `json:"companyName,omitempty"`
	// CompanyDescription — описание компании (опционально)
	CompanyDescription string `json:"companyDescription,omitempty"`
	// Services — предоставляемые услуги (опционально)
	Services string `json:"services,omitempty"`
	// CreatedAt — время создания записи (назначается БД)
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt — время последнего обновления (назначается БД)
	UpdatedAt time.Time `json:"updatedAt"`
}

// RegistrationRequest — DTO регистрации нового пользователя.
// Формат полей проверяется на транспортном уровне до вызова бизнес-логики.
type RegistrationRequest struct {
	Username           string `json:"username"`
	Password           string `json:"password"`
	Email              string `json:"email"`
	Role               string `json:"role"`
	FirstName          string `json:"firstName,omitempty"`
	LastName           string `json:"lastName,omitempty"`
	Phone              string `json:"phone"`
	FieldOfInterest    string `json:"fieldOfInterest,omitempty"`
	CompanyName        string `json:"companyName,omitempty"`
	CompanyDescription string `json:"companyDescription,omitempty"`
	Services           string `json:"services,omitempty"`
}
