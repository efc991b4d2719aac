// seed-admin creates the console ADMIN, or resets an existing user to an
// active ADMIN with the given password.
//
// Usage:
//
//	DB_DRIVER=... DB_USER=... DB_PASSWORD=... DB_HOST=... DB_NAME=... \
//	  go run ./cmd/seed-admin -username fingovAdmin -password '...'
//
// SEED_ADMIN_USERNAME and SEED_ADMIN_PASSWORD are read when the flags are
// omitted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"bitbucket.org/easyadvisor/fingov_backend/models"
)

func main() {
	username := flag.String("username", config.StringFromEnv("SEED_ADMIN_USERNAME", "fingovAdmin"), "admin username")
	password := flag.String("password", os.Getenv("SEED_ADMIN_PASSWORD"), "admin password (required)")
	migrate := flag.Bool("migrate", false, "run AutoMigrate before seeding")
	flag.Parse()

	if *password == "" {
		fmt.Fprintln(os.Stderr, "--password (or SEED_ADMIN_PASSWORD) is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if *migrate {
		models.MigrateTable()
	}

	created, err := models.EnsureAdmin(context.Background(), *username, *password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed admin user: %v\n", err)
		os.Exit(1)
	}
	if created {
		fmt.Printf("Created admin user: username=%q (role=ADMIN)\n", *username)
		return
	}
	fmt.Printf("Updated admin user: username=%q (role=ADMIN)\n", *username)
}
