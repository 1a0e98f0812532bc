package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/arturkryukov/investlink/user-module/internal/domain/model"
	"github.com/arturkryukov/investlink/user-module/internal/keycloak"
	"github.com/arturkryukov/investlink/user-module/internal/repository"
)

// mockIDP записывает порядок вызовов методов Keycloak.
type mockIDP struct {
	calls []string

	roles []keycloak.RoleRepresentation

	createdUsers  []*keycloak.UserRepresentation
	assignedRoles map[string][]string // keycloak user id -> role id

	tokenErr    error
	createErr   error
	assignErr   error
	passwordErr error
}

func newMockIDP() *mockIDP {
	return &mockIDP{
		roles: []keycloak.RoleRepresentation{
			{ID: "r1", Name: "Investor"},
			{ID: "r2", Name: "Entrepreneur"},
			{ID: "r3", Name: "Administrator"},
		},
		assignedRoles: make(map[string][]string),
	}
}

func (m *mockIDP) GetServiceToken(_ context.Context) (string, error) {
	m.calls = append(m.calls, "token")
	if m.tokenErr != nil {
		return "", m.tokenErr
	}
	return "service-token", nil
}

func (m *mockIDP) CreateUser(_ context.Context, user *keycloak.UserRepresentation) (string, error) {
	m.calls = append(m.calls, "create")
	if m.createErr != nil {
		return "", m.createErr
	}
	m.createdUsers = append(m.createdUsers, user)
	return "kc-u1", nil
}

func (m *mockIDP) ResolveRealmRole(_ context.Context, name string) (*keycloak.RoleRepresentation, error) {
	m.calls = append(m.calls, "resolve-role")
	for i := range m.roles {
		if m.roles[i].Name == name {
			return &m.roles[i], nil
		}
	}
	return nil, keycloak.ErrRoleNotFound
}

func (m *mockIDP) AssignRealmRole(_ context.Context, userID string, role *keycloak.RoleRepresentation) error {
	m.calls = append(m.calls, "assign-role")
	if m.assignErr != nil {
		return m.assignErr
	}
	m.assignedRoles[userID] = append(m.assignedRoles[userID], role.ID)
	return nil
}

func (m *mockIDP) PasswordGrant(_ context.Context, _, _ string) (string, error) {
	m.calls = append(m.calls, "password-grant")
	if m.passwordErr != nil {
		return "", m.passwordErr
	}
	return "user-token", nil
}

// mockUserRepo — in-memory реализация repository.UserRepository.
type mockUserRepo struct {
	users     map[string]*model.User
	createErr error
	getErr    error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.users[user.Username]; exists {
		return repository.ErrConflict
	}
	m.users[user.Username] = user
	return nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	user, ok := m.users[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (m *mockUserRepo) List(_ context.Context, _, _ int) ([]*model.User, error) {
	result := make([]*model.User, 0, len(m.users))
	for _, u := range m.users {
		result = append(result, u)
	}
	return result, nil
}

func (m *mockUserRepo) Count(_ context.Context) (int, error) {
	return len(m.users), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func registrationRequest() *model.RegistrationRequest {
	return &model.RegistrationRequest{
		Username:  "alice",
		Password:  "s3cret-pass",
		Email:     "alice@example.com",
		Role:      "Investor",
		FirstName: "Alice",
		LastName:  "Smith",
		Phone:     "+70000000001",
	}
}

func TestRegister_Success(t *testing.T) {
	idp := newMockIDP()
	repo := newMockUserRepo()
	svc := NewUserService(idp, repo, testLogger())

	user, err := svc.Register(context.Background(), registrationRequest())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Строгий порядок шагов
	want := []string{"token", "create", "resolve-role", "assign-role"}
	if len(idp.calls) != len(want) {
		t.Fatalf("вызовы IdP: получено %v, ожидалось %v", idp.calls, want)
	}
	for i, call := range want {
		if idp.calls[i] != call {
			t.Errorf("вызов %d: получено %q, ожидалось %q", i, idp.calls[i], call)
		}
	}

	// Ровно одно назначение роли, именно r1 (Investor)
	assigned := idp.assignedRoles["kc-u1"]
	if len(assigned) != 1 || assigned[0] != "r1" {
		t.Errorf("назначенные роли: получено %v, ожидалось [r1]", assigned)
	}

	// Пользователь Keycloak создан с постоянным паролем и атрибутом Phone
	if len(idp.createdUsers) != 1 {
		t.Fatalf("создано пользователей Keycloak: %d", len(idp.createdUsers))
	}
	kcUser := idp.createdUsers[0]
	if !kcUser.Enabled {
		t.Error("пользователь Keycloak должен быть enabled")
	}
	if len(kcUser.Credentials) != 1 || kcUser.Credentials[0].Temporary {
		t.Errorf("credentials: %+v", kcUser.Credentials)
	}
	if got := kcUser.Attributes["Phone"]; len(got) != 1 || got[0] != "+70000000001" {
		t.Errorf("атрибут Phone: %v", got)
	}

	// Локальная запись сохранена
	saved, ok := repo.users["alice"]
	if !ok {
		t.Fatal("локальная запись не сохранена")
	}
	if saved.Role != "Investor" {
		t.Errorf("роль: получено %q, ожидалось Investor", saved.Role)
	}
	if user.Username != "alice" {
		t.Errorf("username: %q", user.Username)
	}

	// Пароль хранится только как bcrypt-хэш
	if saved.PasswordHash == "s3cret-pass" {
		t.Error("пароль сохранён открытым текстом")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(saved.PasswordHash), []byte("s3cret-pass")); err != nil {
		t.Errorf("хэш пароля не соответствует паролю: %v", err)
	}
}

func TestRegister_InvalidRole(t *testing.T) {
	idp := newMockIDP()
	repo := newMockUserRepo()
	svc := NewUserService(idp, repo, testLogger())

	for _, role := range []string{"Administrator", "Superuser", ""} {
		req := registrationRequest()
		req.Role = role
		if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrInvalidRole) {
			t.Errorf("роль %q: получено %v, ожидалось ErrInvalidRole", role, err)
		}
	}
	if len(idp.calls) != 0 {
		t.Errorf("при недопустимой роли Keycloak не должен вызываться: %v", idp.calls)
	}
}

func TestRegister_KeycloakCreateFailure(t *testing.T) {
	idp := newMockIDP()
	idp.createErr = errors.New("keycloak: 409 Conflict")
	repo := newMockUserRepo()
	svc := NewUserService(idp, repo, testLogger())

	_, err := svc.Register(context.Background(), registrationRequest())
	if !errors.Is(err, ErrRegistrationFailed) {
		t.Fatalf("получено %v, ожидалось ErrRegistrationFailed", err)
	}
	if len(repo.users) != 0 {
		t.Error("при ошибке Keycloak локальное хранилище должно остаться нетронутым")
	}
}

func TestRegister_RoleBindFailure(t *testing.T) {
	idp := newMockIDP()
	idp.assignErr = errors.New("keycloak: 403 Forbidden")
	repo := newMockUserRepo()
	svc := NewUserService(idp, repo, testLogger())

	_, err := svc.Register(context.Background(), registrationRequest())
	if !errors.Is(err, ErrRegistrationFailed) {
		t.Fatalf("получено %v, ожидалось ErrRegistrationFailed", err)
	}
	if len(repo.users) != 0 {
		t.Error("при ошибке назначения роли локальная запись не должна создаваться")
	}
}

func TestRegister_UnknownRoleInCatalog(t *testing.T) {
	idp := newMockIDP()
	idp.roles = []keycloak.RoleRepresentation{{ID: "r9", Name: "offline_access"}}
	repo := newMockUserRepo()
	svc := NewUserService(idp, repo, testLogger())

	_, err := svc.Register(context.Background(), registrationRequest())
	if !errors.Is(err, ErrRegistrationFailed) {
		t.Fatalf("получено %v, ожидалось ErrRegistrationFailed", err)
	}
	if len(repo.users) != 0 {
		t.Error("локальное хранилище должно остаться нетронутым")
	}
}

func TestRegister_LocalConflict(t *testing.T) {
	idp := newMockIDP()
	repo := newMockUserRepo()
	repo.users["alice"] = &model.User{Username: "alice"}
	svc := NewUserService(idp, repo, testLogger())

	_, err := svc.Register(context.Background(), registrationRequest())
	if !errors.Is(err, ErrRegistrationFailed) {
		t.Fatalf("получено %v, ожидалось ErrRegistrationFailed", err)
	}
}

func TestLogin_Success(t *testing.T) {
	idp := newMockIDP()
	repo := newMockUserRepo()
	repo.users["alice"] = &model.User{Username: "alice", Role: "Investor"}
	svc := NewUserService(idp, repo, testLogger())

	token, user, err := svc.Login(context.Background(), "alice", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token != "user-token" {
		t.Errorf("token: %q", token)
	}
	if user.Username != "alice" {
		t.Errorf("user: %+v", user)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	idp := newMockIDP()
	idp.passwordErr = keycloak.ErrInvalidCredentials
	repo := newMockUserRepo()
	svc := NewUserService(idp, repo, testLogger())

	_, _, err := svc.Login(context.Background(), "alice", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("получено %v, ожидалось ErrInvalidCredentials", err)
	}
}

func TestLogin_KeycloakUnavailable(t *testing.T) {
	idp := newMockIDP()
	idp.passwordErr = errors.New("keycloak: 503 Service Unavailable")
	repo := newMockUserRepo()
	svc := NewUserService(idp, repo, testLogger())

	_, _, err := svc.Login(context.Background(), "alice", "s3cret-pass")
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("недоступность Keycloak не должна выглядеть как неверные учётные данные")
	}
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("получено %v, ожидалось ErrLoginFailed", err)
	}
}

func TestLogin_NoLocalRecord(t *testing.T) {
	idp := newMockIDP()
	repo := newMockUserRepo()
	svc := NewUserService(idp, repo, testLogger())

	// Keycloak принял пароль, локальной записи нет
	_, _, err := svc.Login(context.Background(), "ghost", "s3cret-pass")
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("получено %v, ожидалось ErrLoginFailed", err)
	}
}

func TestGetUserByUsername(t *testing.T) {
	idp := newMockIDP()
	repo := newMockUserRepo()
	repo.users["bob"] = &model.User{Username: "bob", Role: "Entrepreneur"}
	svc := NewUserService(idp, repo, testLogger())

	user, err := svc.GetUserByUsername(context.Background(), "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user.Role != "Entrepreneur" {
		t.Errorf("роль: %q", user.Role)
	}

	if _, err := svc.GetUserByUsername(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("получено %v, ожидалось ErrNotFound", err)
	}
}

func TestListUsers(t *testing.T) {
	idp := newMockIDP()
	repo := newMockUserRepo()
	repo.users["a"] = &model.User{Username: "a"}
	repo.users["b"] = &model.User{Username: "b"}
	svc := NewUserService(idp, repo, testLogger())

	users, total, err := svc.ListUsers(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 || total != 2 {
		t.Errorf("получено %d пользователей, total=%d", len(users), total)
	}
}
