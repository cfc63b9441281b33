package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/parliament/internal/migration"
)

// runMigrate 处理 migrate 子命令，参数顺序为 <subcommand> [flags] [version]
func runMigrate(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printMigrateUsage(stderr)
		if len(args) < 1 {
			return 2
		}
		return 0
	}
	subcommand := args[0]

	fs := flag.NewFlagSet("migrate "+subcommand, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	logger := zap.NewNop()
	migrator, err := newMigrator(*configPath, *dbType, *dbURL, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create migrator: %v\n", err)
		return 1
	}
	defer migrator.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(stdout)
	if err := cli.Run(ctx, subcommand, fs.Args()); err != nil {
		fmt.Fprintf(stderr, "Migration %s failed: %v\n", subcommand, err)
		return 1
	}
	return 0
}

// newMigrator 优先使用 --db-type/--db-url，否则读取配置文件的 database 段
func newMigrator(configPath, dbType, dbURL string, logger *zap.Logger) (*migration.DefaultMigrator, error) {
	if dbType != "" && dbURL != "" {
		return migration.NewMigratorFromURL(dbType, dbURL, logger)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbType != "" {
		cfg.Database.Driver = dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
}

func printMigrateUsage(w io.Writer) {
	fmt.Fprintln(w, `Database Migration Commands

Usage:
  parliament migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration
  status    Show migration status
  version   Show current migration version
  info      Show migration summary
  force <v> Force set migration version (use with caution)

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite
  --db-url <url>      Database connection URL

Examples:
  parliament migrate up
  parliament migrate status --config /etc/parliament/config.yaml
  parliament migrate force --db-type sqlite --db-url "file:parliament.db?mode=rwc" 1`)
}
