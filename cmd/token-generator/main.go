// Command token-generator prints bearer tokens for the isplitter API,
// signed with the configured JWT secret.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/phrazzld/isplitter/internal/config"
	"github.com/phrazzld/isplitter/internal/service/auth"
)

func main() {
	lifetime := flag.Int("minutes", 0, "token lifetime in minutes (0 uses the configured lifetime)")
	flag.Parse()

	subjects := flag.Args()
	if len(subjects) == 0 {
		fmt.Fprintln(os.Stderr, "usage: token-generator [-minutes N] <subject>...")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if !cfg.Auth.Enabled() {
		fmt.Fprintln(os.Stderr, "auth.jwt_secret is not set; the API accepts unauthenticated requests")
		os.Exit(1)
	}
	if *lifetime > 0 {
		cfg.Auth.TokenLifetimeMinutes = *lifetime
	}

	svc, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create token service: %v\n", err)
		os.Exit(1)
	}

	for _, subject := range subjects {
		token, err := svc.GenerateToken(context.Background(), subject)
		if err != nil {
			fmt.Printf("Error generating token for %s: %v\n", subject, err)
			continue
		}
		fmt.Printf("Subject: %s\nToken: %s\n\n", subject, token)
	}
}
