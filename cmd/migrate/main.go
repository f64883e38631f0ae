// Command migrate creates the credential schema and optionally seeds an
// administrator account.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"taskhub.org/internal/auth"
)

func main() {
	var (
		dsn           = flag.String("dsn", os.Getenv("TASKHUB_PG_DSN"), "postgres DSN (defaults to TASKHUB_PG_DSN)")
		seedAdmin     = flag.String("seed-admin", "", "username of an admin account to seed (optional)")
		seedEmail     = flag.String("seed-email", "", "email for the seeded admin")
		seedPassword  = flag.String("seed-password", "", "password for the seeded admin")
		timeoutString = flag.String("timeout", "30s", "overall timeout")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("migrate: -dsn or TASKHUB_PG_DSN is required")
	}
	timeout, err := time.ParseDuration(*timeoutString)
	if err != nil {
		log.Fatalf("migrate: invalid timeout: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("migrate: open db: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("migrate: ping: %v", err)
	}

	store := auth.NewPGUserStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("migrate: schema ensured")

	if *seedAdmin == "" {
		return
	}
	if *seedEmail == "" || *seedPassword == "" {
		log.Fatal("migrate: -seed-email and -seed-password are required with -seed-admin")
	}

	taken, err := store.ExistsByUsername(ctx, *seedAdmin)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if taken {
		log.Printf("migrate: admin %q already exists, skipping seed", *seedAdmin)
		return
	}

	hash, err := auth.HashPassword(*seedPassword)
	if err != nil {
		log.Fatalf("migrate: hash password: %v", err)
	}
	admin := &auth.User{
		ID:           uuid.New(),
		Username:     *seedAdmin,
		Email:        *seedEmail,
		PasswordHash: hash,
		Roles:        []auth.Role{auth.RoleAdmin, auth.RoleUser},
	}
	if err := store.Save(ctx, admin); err != nil {
		log.Fatalf("migrate: seed admin: %v", err)
	}
	log.Printf("migrate: seeded admin %q (%s)", admin.Username, admin.ID)
}
