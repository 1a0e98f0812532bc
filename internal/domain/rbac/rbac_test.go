package rbac

import "testing"

// TestAuthorize проверяет правило пересечения ролей.
func TestAuthorize(t *testing.T) {
	tests := []struct {
		name         string
		subjectRoles []string
		required     []string
		want         bool
	}{
		{
			name:         "одна общая роль — разрешено",
			subjectRoles: []string{RoleInvestor},
			required:     []string{RoleInvestor},
			want:         true,
		},
		{
			name:         "роль не входит в требуемый набор — отказ",
			subjectRoles: []string{RoleInvestor},
			required:     []string{RoleAdministrator},
			want:         false,
		},
		{
			name:         "достаточно одного пересечения",
			subjectRoles: []string{RoleAdministrator, RoleInvestor},
			required:     []string{RoleInvestor},
			want:         true,
		},
		{
			name:         "пустые роли субъекта — отказ",
			subjectRoles: nil,
			required:     []string{RoleInvestor},
			want:         false,
		},
		{
			name:         "пустой требуемый набор — отказ",
			subjectRoles: []string{RoleInvestor},
			required:     nil,
			want:         false,
		},
		{
			name:         "несколько требуемых ролей, совпадает вторая",
			subjectRoles: []string{RoleEntrepreneur},
			required:     []string{RoleInvestor, RoleEntrepreneur},
			want:         true,
		},
		{
			name:         "посторонние роли Keycloak не дают доступа",
			subjectRoles: []string{"offline_access", "uma_authorization"},
			required:     []string{RoleInvestor},
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Authorize(tt.subjectRoles, tt.required); got != tt.want {
				t.Errorf("Authorize(%v, %v) = %v, ожидалось %v",
					tt.subjectRoles, tt.required, got, tt.want)
			}
		})
	}
}

// TestIsRegistrableRole проверяет допустимость ролей при регистрации.
func TestIsRegistrableRole(t *testing.T) {
	if !IsRegistrableRole(RoleEntrepreneur) {
		t.Error("Entrepreneur должна быть допустимой ролью регистрации")
	}
	if !IsRegistrableRole(RoleInvestor) {
		t.Error("Investor должна быть допустимой ролью регистрации")
	}
	if IsRegistrableRole(RoleAdministrator) {
		t.Error("Administrator не должна назначаться при регистрации")
	}
	if IsRegistrableRole("unknown") {
		t.Error("неизвестная роль не должна быть допустимой")
	}
}
