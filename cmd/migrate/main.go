// migrate applies or rolls back the embedded PostgreSQL schema migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pressly/goose/v3"

	"jobmate/autoapply-service/internal/db"
	"jobmate/autoapply-service/migrations"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [-database-url url] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  up          Migrate to the latest version")
	fmt.Fprintln(os.Stderr, "  up-one      Migrate one version up")
	fmt.Fprintln(os.Stderr, "  down        Roll back one version")
	fmt.Fprintln(os.Stderr, "  status      Show migration status")
	fmt.Fprintln(os.Stderr, "  version     Show current version")
	fmt.Fprintln(os.Stderr, "  reset       Roll back all migrations")
}

func main() {
	dbURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "postgres connection URL")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}
	if *dbURL == "" {
		log.Fatal("[migrate] DATABASE_URL or -database-url is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := db.NewPostgres(ctx, *dbURL, 2, 1)
	cancel()
	if err != nil {
		log.Fatalf("[migrate] %v", err)
	}
	defer func() { _ = conn.Close() }()

	if err := migrations.Setup(); err != nil {
		log.Fatalf("[migrate] %v", err)
	}

	cmd := args[0]
	switch cmd {
	case "up":
		err = goose.Up(conn, ".")
	case "up-one":
		err = goose.UpByOne(conn, ".")
	case "down":
		err = goose.Down(conn, ".")
	case "status":
		err = goose.Status(conn, ".")
	case "version":
		err = goose.Version(conn, ".")
	case "reset":
		err = goose.Reset(conn, ".")
	default:
		usage()
		log.Fatalf("[migrate] unknown command: %s", cmd)
	}

	if err != nil {
		log.Fatalf("[migrate] %s: %v", cmd, err)
	}
}
