package repo

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/gopher-loyalty/internal/dbmanager"
	"github.com/talx-hub/gopher-loyalty/internal/model/program"
	"github.com/talx-hub/gopher-loyalty/internal/utils/pgcontainer"
)

const testDefaultTimeout = 10 * time.Second

var (
	getDSN       func() string
	getDBManager func() *dbmanager.DBManager
)

func runMain(m *testing.M, log *slog.Logger) (int, error) {
	pg := pgcontainer.New(log)
	getDSN = func() string {
		return pg.GetDSN()
	}
	err := pg.RunContainer()
	defer pg.Close()
	if err != nil {
		return 1, fmt.Errorf("failed to run docker container: %w", err)
	}

	if err = initGetDBManager(log); err != nil {
		return 1, fmt.Errorf("failed to init test DB: %w", err)
	}

	db := getDBManager()
	defer db.Close()

	exitCode := m.Run()
	return exitCode, nil
}

func initGetDBManager(log *slog.Logger) error {
	dsn := getDSN()
	db := dbmanager.New(dsn, log).WithMaxConns(16)

	ctx, cancel := context.WithTimeout(context.Background(), testDefaultTimeout)
	defer cancel()

	db.Connect(ctx).Ping(ctx).ApplyMigrations(ctx)
	if err := db.Error(); err != nil {
		return fmt.Errorf("failed to prepare test DB using dsn %s: %w", dsn, err)
	}

	getDBManager = func() *dbmanager.DBManager {
		return db
	}
	return nil
}

func setupStore(t *testing.T) (*Store, context.Context, context.CancelFunc, *pgxpool.Pool) {
	t.Helper()

	pool, err := getDBManager().GetPool(context.Background())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), testDefaultTimeout)
	return NewStore(pool, slog.New(slog.DiscardHandler), WithRetryUnit(time.Millisecond)), ctx, cancel, pool
}

// uniqueID keeps rows of different tests apart in the shared database.
func uniqueID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

type defaults struct{}

func (defaults) Loyalty(merchantID string) (program.Loyalty, error) {
	return program.DefaultLoyalty(merchantID), nil
}

func (defaults) Wallet(merchantID string) (program.WalletSettings, error) {
	return program.DefaultWalletSettings(merchantID), nil
}
