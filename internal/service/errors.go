// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrInvalidRole — некорректная роль регистрации.
	ErrInvalidRole = errors.New("некорректная роль: допустимые значения — Entrepreneur, Investor")
	// ErrRegistrationFailed — регистрация не удалась. Единственная внешняя
	// ошибка регистрации: причина (Keycloak, БД) логируется, но не раскрывается.
	ErrRegistrationFailed = errors.New("не удалось создать пользователя")
	// ErrInvalidCredentials — Keycloak отверг логин/пароль.
	ErrInvalidCredentials = errors.New("неверные учётные данные")
	// ErrLoginFailed — вход не удался по любой другой причине.
	// Не раскрывает, существует ли учётная запись локально.
	ErrLoginFailed = errors.New("не удалось выполнить вход")
)
