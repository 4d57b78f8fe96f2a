// Command migrate manages the fraudguard database schema via goose.
//
// Usage:
//
//	go run ./cmd/migrate up               # Apply all pending migrations
//	go run ./cmd/migrate down             # Roll back the last migration
//	go run ./cmd/migrate status           # Show migration status
//	go run ./cmd/migrate create add_x sql # Create a new migration file
//
// The database is taken from DATABASE_URL, with .env honored the same
// way the server honors it.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

func main() {
	dir := flag.String("dir", "migrations", "directory with migration files")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}
	command := flag.Arg(0)
	args := flag.Args()[1:]

	_ = godotenv.Load()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("set dialect: %v", err)
	}

	// create and fix work on files alone, no database needed.
	if command == "create" || command == "fix" {
		if err := goose.RunContext(context.Background(), command, nil, *dir, args...); err != nil {
			log.Fatalf("migrate %s: %v", command, err)
		}
		return
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required (set it in the environment or .env)")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		log.Fatalf("connect to database: %v", err)
	}

	if err := goose.RunContext(context.Background(), command, db, *dir, args...); err != nil {
		log.Fatalf("migrate %s: %v", command, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [-dir migrations] <command> [args]")
	fmt.Fprintln(os.Stderr, "Commands: up, down, status, version, redo, up-to N, down-to N, create NAME sql, fix")
	flag.PrintDefaults()
}
