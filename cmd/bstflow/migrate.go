package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/BaSui01/bstflow/internal/migration"
)

// errSQLiteAutoMigrate sqlite 报告表由存储层在打开时自动建表
var errSQLiteAutoMigrate = errors.New("sqlite schema is managed by the report store on open, nothing to migrate")

// runMigrate 处理 migrate 子命令: up | down | status | version | list
func runMigrate(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("migrate requires an action: up, down, status, version or list")
	}
	action := args[0]
	switch action {
	case "up", "down", "status", "version", "list":
	default:
		return fmt.Errorf("unknown migrate action: %s", action)
	}

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	driver := fs.String("driver", "", "Database driver, overrides store.database.driver")
	dsn := fs.String("dsn", "", "Database DSN, overrides the DSN built from config")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *driver == "" {
		*driver = cfg.Store.Database.Driver
	}
	dbType, err := migration.ParseDatabaseType(*driver)
	if err != nil {
		return err
	}

	// list 只读取内嵌迁移，不需要连接
	if action == "list" {
		statuses, err := migration.Available(dbType)
		if err != nil {
			return err
		}
		return migration.PrintStatus(stdout, statuses)
	}

	if dbType == migration.DatabaseTypeSQLite {
		return errSQLiteAutoMigrate
	}
	if *dsn == "" {
		*dsn = cfg.Store.Database.DSN()
	}

	logger, err := initLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	m, err := migration.NewMigrator(migration.Config{DatabaseType: dbType, DSN: *dsn}, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	switch action {
	case "up":
		if err := m.Up(); err != nil {
			return err
		}
		logger.Info("migrations applied", zap.String("database", string(dbType)))
		fmt.Fprintln(stdout, "migrations applied")
	case "down":
		if err := m.Down(); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "migrations rolled back")
	case "status":
		statuses, err := m.Status()
		if err != nil {
			return err
		}
		return migration.PrintStatus(stdout, statuses)
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "version: %d, dirty: %v\n", v, dirty)
	}
	return nil
}
