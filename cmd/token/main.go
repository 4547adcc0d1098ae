package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"crew-staffing/internal/auth"
	"crew-staffing/internal/config"
	"crew-staffing/internal/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	user := flag.String("user", "", "user id (subject)")
	role := flag.String("role", string(models.RoleService), "caller role: admin, logistics, management, technician, service")
	department := flag.String("department", "", "caller department")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *user == "" {
		log.Fatal("-user is required")
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		log.Fatalf("failed to initialize verifier: %v", err)
	}

	token, err := verifier.Issue(models.Caller{
		UserID:     *user,
		Role:       models.CallerRole(*role),
		Department: models.Department(*department),
	}, *ttl)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}

	fmt.Println(token)
}
