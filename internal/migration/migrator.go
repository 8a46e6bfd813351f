package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationsFS embed.FS

// DatabaseType 数据库方言
type DatabaseType string

const (
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeMySQL    DatabaseType = "mysql"
	DatabaseTypeSQLite   DatabaseType = "sqlite"
)

// DefaultTable 迁移版本表名
const DefaultTable = "schema_migrations"

// MigrationStatus 单个迁移版本的状态
type MigrationStatus struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// Config 迁移配置
type Config struct {
	DatabaseType DatabaseType
	// DSN 连接串，格式与 gorm 驱动一致
	DSN string
	// TableName 默认 schema_migrations
	TableName string
}

// Migrator 封装 golang-migrate 实例
type Migrator struct {
	dbType  DatabaseType
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// NewMigrator 按 DSN 打开独立连接并创建迁移器，Close 时释放连接
// SQLite 由调用方通过 NewWithDriver 传入驱动
func NewMigrator(cfg Config, logger *zap.Logger) (*Migrator, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	if cfg.TableName == "" {
		cfg.TableName = DefaultTable
	}

	var (
		driverName string
		open       func(*sql.DB) (database.Driver, error)
	)
	switch cfg.DatabaseType {
	case DatabaseTypePostgres:
		driverName = "postgres"
		open = func(db *sql.DB) (database.Driver, error) {
			return postgres.WithInstance(db, &postgres.Config{MigrationsTable: cfg.TableName})
		}
	case DatabaseTypeMySQL:
		driverName = "mysql"
		open = func(db *sql.DB) (database.Driver, error) {
			return mysql.WithInstance(db, &mysql.Config{MigrationsTable: cfg.TableName})
		}
	default:
		return nil, fmt.Errorf("unsupported database type for DSN migrations: %s", cfg.DatabaseType)
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	drv, err := open(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	return NewWithDriver(cfg.DatabaseType, drv, logger)
}

// NewWithDriver 使用已创建的 golang-migrate 数据库驱动
func NewWithDriver(dbType DatabaseType, drv database.Driver, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	src, err := sourceFor(dbType)
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithInstance("iofs", src, string(dbType), drv)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return &Migrator{
		dbType:  dbType,
		migrate: m,
		logger:  logger.With(zap.String("component", "migration"), zap.String("database", string(dbType))),
	}, nil
}

func sourceFor(dbType DatabaseType) (source.Driver, error) {
	switch dbType {
	case DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite:
		return iofs.New(migrationsFS, "migrations/"+string(dbType))
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// Up 应用全部未执行的迁移
func (m *Migrator) Up() error {
	if err := m.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	v, _, _ := m.Version()
	m.logger.Info("schema up to date", zap.Uint("version", v))
	return nil
}

// Down 回滚最近一次迁移
func (m *Migrator) Down() error {
	if err := m.migrate.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Version 返回当前版本，未执行过迁移时为 0
func (m *Migrator) Version() (uint, bool, error) {
	v, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return v, dirty, nil
}

// Status 返回每个内嵌迁移的应用状态
func (m *Migrator) Status() ([]MigrationStatus, error) {
	current, dirty, err := m.Version()
	if err != nil {
		return nil, err
	}
	all, err := Available(m.dbType)
	if err != nil {
		return nil, err
	}
	for i := range all {
		all[i].Applied = all[i].Version <= current
		all[i].Dirty = dirty && all[i].Version == current
	}
	return all, nil
}

// Close 关闭迁移源与数据库驱动
func (m *Migrator) Close() error {
	srcErr, dbErr := m.migrate.Close()
	return errors.Join(srcErr, dbErr)
}

// Available 列出某方言的内嵌迁移，按版本升序
func Available(dbType DatabaseType) ([]MigrationStatus, error) {
	src, err := sourceFor(dbType)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var out []MigrationStatus
	v, err := src.First()
	for err == nil {
		r, ident, rerr := src.ReadUp(v)
		if rerr != nil {
			return nil, fmt.Errorf("read migration %d: %w", v, rerr)
		}
		r.Close()
		out = append(out, MigrationStatus{Version: v, Name: ident})
		v, err = src.Next(v)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	return out, nil
}

// ParseDatabaseType 解析方言名称
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DatabaseTypePostgres, nil
	case "mysql", "mariadb":
		return DatabaseTypeMySQL, nil
	case "sqlite", "sqlite3":
		return DatabaseTypeSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", s)
	}
}
