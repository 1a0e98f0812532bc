package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/arturkryukov/investlink/user-module/internal/config"
	"github.com/arturkryukov/investlink/user-module/internal/database"
	"github.com/arturkryukov/investlink/user-module/internal/domain/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool с очисткой через t.Cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("investlink_test"),
		postgres.WithUsername("investlink"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	t.Setenv("UM_DB_HOST", host)
	t.Setenv("UM_DB_PORT", port.Port())
	t.Setenv("UM_DB_NAME", "investlink_test")
	t.Setenv("UM_DB_USER", "investlink")
	t.Setenv("UM_DB_PASSWORD", "test-password")
	t.Setenv("UM_DB_SSL_MODE", "disable")
	t.Setenv("UM_KEYCLOAK_URL", "http://localhost:8080")
	t.Setenv("UM_KEYCLOAK_CLIENT_ID", "test")
	t.Setenv("UM_KEYCLOAK_CLIENT_SECRET", "test")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// testUser возвращает валидного пользователя с уникальными username/email/phone.
func testUser(n int) *model.User {
	return &model.User{
		Username:        fmt.Sprintf("user%d", n),
		PasswordHash:    "$2a$10$abcdefghijklmnopqrstuv",
		Email:           fmt.Sprintf("user%d@example.com", n),
		Role:            "Investor",
		FirstName:       "Test",
		LastName:        "User",
		Phone:           fmt.Sprintf("+7000000%04d", n),
		FieldOfInterest: "fintech",
	}
}

func TestUserCreateAndGet(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	user := testUser(1)
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if user.ID == "" {
		t.Error("ID не установлен после Create")
	}
	if user.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}

	got, err := repo.GetByUsername(ctx, "user1")
	if err != nil {
		t.Fatalf("GetByUsername() ошибка: %v", err)
	}
	if got.Email != "user1@example.com" {
		t.Errorf("Email = %q", got.Email)
	}
	if got.Role != "Investor" {
		t.Errorf("Role = %q", got.Role)
	}
	if got.PasswordHash != user.PasswordHash {
		t.Error("PasswordHash не совпадает")
	}
}

func TestUserNotFound(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepository(pool)

	if _, err := repo.GetByUsername(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("получено %v, ожидалось ErrNotFound", err)
	}
}

func TestUserUniqueConstraints(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	if err := repo.Create(ctx, testUser(10)); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	// Дубликат username
	dup := testUser(11)
	dup.Username = "user10"
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("дубликат username: получено %v, ожидалось ErrConflict", err)
	}

	// Дубликат email
	dup = testUser(12)
	dup.Email = "user10@example.com"
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("дубликат email: получено %v, ожидалось ErrConflict", err)
	}

	// Дубликат phone
	dup = testUser(13)
	dup.Phone = testUser(10).Phone
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("дубликат phone: получено %v, ожидалось ErrConflict", err)
	}
}

func TestUserRoleConstraint(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepository(pool)

	user := testUser(20)
	user.Role = "Superuser"
	if err := repo.Create(context.Background(), user); err == nil {
		t.Error("роль вне CHECK-ограничения должна отклоняться БД")
	}
}

func TestUserListAndCount(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	for i := 30; i < 35; i++ {
		if err := repo.Create(ctx, testUser(i)); err != nil {
			t.Fatalf("Create(%d) ошибка: %v", i, err)
		}
	}

	users, err := repo.List(ctx, 3, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(users) != 3 {
		t.Errorf("List(3, 0) вернул %d пользователей", len(users))
	}

	rest, err := repo.List(ctx, 10, 3)
	if err != nil {
		t.Fatalf("List() с offset ошибка: %v", err)
	}
	if len(rest) != 2 {
		t.Errorf("List(10, 3) вернул %d пользователей", len(rest))
	}

	total, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() ошибка: %v", err)
	}
	if total != 5 {
		t.Errorf("Count() = %d, ожидалось 5", total)
	}
}
