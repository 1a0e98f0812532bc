// Пакет rbac — решение о доступе на основе ролей из Keycloak JWT.
// Доступ к операции разрешён, если роли субъекта пересекаются
// с требуемым набором ролей операции (достаточно одной общей роли).
package rbac

// Роли платформы. Словарь совпадает с realm-ролями Keycloak.
const (
	// RoleEntrepreneur — предприниматель, ищет инвестиции.
	RoleEntrepreneur = "Entrepreneur"
	// RoleInvestor — инвестор.
	RoleInvestor = "Investor"
	// RoleAdministrator — административная роль. Назначается только
	// в Keycloak, локальные записи пользователей её не содержат.
	RoleAdministrator = "Administrator"
)

// registrableRoles — роли, допустимые при регистрации пользователя.
var registrableRoles = map[string]bool{
	RoleEntrepreneur: true,
	RoleInvestor:     true,
}

// IsRegistrableRole проверяет, допустима ли роль при регистрации.
// Administrator регистрацией не назначается.
func IsRegistrableRole(role string) bool {
	return registrableRoles[role]
}

// Authorize решает, разрешён ли доступ: true, если пересечение
// ролей субъекта и требуемого набора непусто. Пустой набор ролей
// субъекта всегда означает отказ.
func Authorize(subjectRoles, required []string) bool {
	if len(subjectRoles) == 0 || len(required) == 0 {
		return false
	}
	requiredSet := toSet(required)
	for _, r := range subjectRoles {
		if requiredSet[r] {
			return true
		}
	}
	return false
}

// toSet конвертирует срез строк в map для быстрого поиска.
func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
