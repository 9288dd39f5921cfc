// Package pgcontainer starts a throwaway PostgreSQL in Docker for integration tests.
package pgcontainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"github.com/talx-hub/gopher-loyalty/internal/model"
)

const (
	defaultTag       = "17-alpine"
	pgPort           = "5432/tcp"
	testDBName       = "test"
	testUserName     = "test"
	testUserPassword = "test"
	setupTimeout     = 5 * time.Second
)

type Container struct {
	log      *slog.Logger
	pool     *dockertest.Pool
	resource *dockertest.Resource
	hostPort string
}

func New(log *slog.Logger) *Container {
	return &Container{log: log}
}

// RunContainer starts postgres with the image tag from POSTGRES_TAG, which may
// come from a .env file at the module root, and creates the test user and database.
func (c *Container) RunContainer() error {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return fmt.Errorf("failed to initialize a docker pool: %w", err)
	}
	c.pool = pool

	c.resource, err = pool.RunWithOptions(
		&dockertest.RunOptions{
			Repository: "postgres",
			Tag:        imageTag(),
			Env: []string{
				"POSTGRES_USER=postgres",
				"POSTGRES_PASSWORD=postgres",
			},
			ExposedPorts: []string{pgPort},
		},
		func(config *docker.HostConfig) {
			config.AutoRemove = true
			config.RestartPolicy = docker.RestartPolicy{Name: "no"}
		},
	)
	if err != nil {
		return fmt.Errorf("failed to run postgres container: %w", err)
	}
	c.hostPort = c.resource.GetHostPort(pgPort)

	pool.MaxWait = 30 * time.Second
	var conn *pgx.Conn
	if err = pool.Retry(func() error {
		conn, err = c.superUserConnection()
		return err
	}); err != nil {
		return fmt.Errorf("retry failed: %w", err)
	}
	defer func() {
		if err := conn.Close(context.TODO()); err != nil {
			c.log.LogAttrs(context.TODO(),
				slog.LevelWarn,
				"failed to close the super user connection",
				slog.Any(model.KeyLoggerError, err),
			)
		}
	}()

	return createTestDB(conn)
}

func (c *Container) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=disable",
		testUserName,
		testUserPassword,
		c.hostPort,
		testDBName,
	)
}

func (c *Container) Close() {
	if c.pool == nil || c.resource == nil {
		return
	}
	if err := c.pool.Purge(c.resource); err != nil {
		c.log.LogAttrs(context.TODO(),
			slog.LevelError,
			"failed to purge the postgres container",
			slog.Any(model.KeyLoggerError, err),
		)
	}
}

func (c *Container) superUserConnection() (*pgx.Conn, error) {
	dsn := fmt.Sprintf("postgres://postgres:postgres@%s/postgres?sslmode=disable", c.hostPort)
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to get a super user connection: %w", err)
	}
	return conn, nil
}

func createTestDB(conn *pgx.Conn) error {
	const (
		createUser = `CREATE USER %s PASSWORD '%s';`
		createDB   = `CREATE DATABASE %s OWNER %s ENCODING 'UTF8';`
	)

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	if _, err := conn.Exec(ctx, fmt.Sprintf(createUser, testUserName, testUserPassword)); err != nil {
		return fmt.Errorf("failed to create a test user: %w", err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf(createDB, testDBName, testUserName)); err != nil {
		return fmt.Errorf("failed to create a test DB: %w", err)
	}
	return nil
}

func imageTag() string {
	if root, err := moduleRoot(); err == nil {
		_ = godotenv.Load(filepath.Join(root, ".env"))
	}
	if tag := os.Getenv("POSTGRES_TAG"); tag != "" {
		return tag
	}
	return defaultTag
}

func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working dir: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found")
		}
		dir = parent
	}
}
