// Package storage содержит общие помощники интеграционных тестов хранилищ:
// запуск контейнеров PostgreSQL и DynamoDB Local через testcontainers.
package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SkipDockerTestsEnv переменная окружения, отключающая тесты с контейнерами.
const SkipDockerTestsEnv = "SKIP_DOCKER_TESTS"

const dynamoPort = nat.Port("8000/tcp")

// SkipWithoutDocker пропускает тест в режиме -short или при SKIP_DOCKER_TESTS=1.
func SkipWithoutDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	if os.Getenv(SkipDockerTestsEnv) == "1" {
		t.Skip("skipping container test: " + SkipDockerTestsEnv + "=1")
	}
}

// SetupPostgres поднимает PostgreSQL и возвращает строку подключения.
// Контейнер останавливается в t.Cleanup.
func SetupPostgres(t *testing.T) string {
	t.Helper()
	SkipWithoutDocker(t)
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("accounts"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

// SetupDynamoDB поднимает DynamoDB Local и возвращает адрес эндпоинта.
func SetupDynamoDB(t *testing.T) string {
	t.Helper()
	SkipWithoutDocker(t)
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "amazon/dynamodb-local:2.5.2",
		ExposedPorts: []string{string(dynamoPort)},
		Cmd:          []string{"-jar", "DynamoDBLocal.jar", "-inMemory", "-sharedDb"},
		WaitingFor:   wait.ForListeningPort(dynamoPort).WithStartupTimeout(time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate dynamodb container: %s", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, dynamoPort)
	require.NoError(t, err)
	return fmt.Sprintf("http://%s:%s", host, port.Port())
}
