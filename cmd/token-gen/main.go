// token-gen mints a JWT for a user id, for smoke tests and local API
// calls without going through the login flow.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"pairledger/internal/auth"
	"pairledger/internal/config"
	"pairledger/internal/core"
)

func main() {
	_ = godotenv.Load()

	userID := flag.String("user", "", "user id to embed in the token")
	email := flag.String("email", "", "email to embed in the token")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: token-gen -user <id> [-email <email>]")
		os.Exit(2)
	}

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is required")
		os.Exit(1)
	}

	mgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTokenTTL)
	token, err := mgr.Generate(&core.User{ID: *userID, Email: *email})
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate token:", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
