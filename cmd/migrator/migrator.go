// Command migrator applies the embedded goose migrations to DB_DSN.
//
//	migrator [command [args...]]   (default: up)
package main

import (
	"context"
	"os"
	"time"

	"github.com/NordCoder/Feedwatch/internal/obs"
	"github.com/NordCoder/Feedwatch/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

func main() {
	l, err := obs.NewLogger(obs.LogConfig{Level: "info", App: "feedwatch/migrator"})
	if err != nil {
		panic(err)
	}
	defer func() { _ = l.Sync() }()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		l.Fatal("DB_DSN is empty")
	}

	cmd, args := "up", []string(nil)
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(zap.NewStdLog(l))
	if err := goose.SetDialect("postgres"); err != nil {
		l.Fatal("set dialect", zap.Error(err))
	}

	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		l.Fatal("open db", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := goose.RunContext(ctx, cmd, db, ".", args...); err != nil {
		l.Fatal("migrate", zap.String("command", cmd), zap.Error(err))
	}
	l.Info("migrations done", zap.String("command", cmd))
}
