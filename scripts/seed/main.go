package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/odyssey-erp/inventory-portal/internal/platform/kv"
	"github.com/odyssey-erp/inventory-portal/internal/rbac"
	"github.com/odyssey-erp/inventory-portal/internal/users"
)

func main() {
	reset := flag.Bool("reset", false, "drop registered users, activities and the current session before seeding")
	flag.Parse()

	addr := getenv("REDIS_ADDR", "127.0.0.1:6379")
	prefix := getenv("REDIS_PREFIX", "portal:")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := kv.NewRedisClient(ctx, addr)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer client.Close()
	store := kv.NewRedisStore(client, prefix)

	if *reset {
		fmt.Println("→ Resetting portal keys...")
		for _, key := range []string{kv.KeyRegisteredUsers, kv.KeyCurrentUser, kv.KeyUserActivities} {
			if err := store.Delete(ctx, key); err != nil {
				log.Fatalf("delete %s: %v", key, err)
			}
		}
	}

	table, err := rbac.LoadTable(os.Getenv("ROLE_TABLE_PATH"))
	if err != nil {
		log.Fatalf("load role table: %v", err)
	}

	fmt.Println("→ Seeding users...")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	svc := users.NewService(users.NewRepository(store), table, logger)
	n, err := svc.SeedDefaults(ctx)
	if err != nil {
		log.Fatalf("seed users: %v", err)
	}
	if n == 0 {
		fmt.Println("✓ Users already present, nothing seeded")
		return
	}
	fmt.Printf("✓ Seeded %d users\n", n)
	for _, draft := range users.DefaultAccounts() {
		fmt.Printf("  %-9s %s / %s\n", draft.Role, draft.Email, draft.Password)
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
