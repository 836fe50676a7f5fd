package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"conversa/internal/auth/accesstoken"
	"conversa/internal/models"

	"github.com/google/uuid"
)

// devtoken prints an access token shaped like the backend's, signed with
// BACKEND_JWT_SECRET, for poking at a local backend.
func main() {
	email := flag.String("email", "dev@example.com", "email claim")
	name := flag.String("name", "Dev", "display name claim")
	sub := flag.String("sub", "", "user id (random when empty)")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("BACKEND_JWT_SECRET")
	if secret == "" {
		fmt.Println("Usage: BACKEND_JWT_SECRET=<secret> devtoken [-email e] [-name n] [-sub id] [-ttl 1h]")
		os.Exit(1)
	}
	if *sub == "" {
		*sub = uuid.NewString()
	}

	token, err := accesstoken.Mint(secret, models.Identity{ID: *sub, Email: *email, DisplayName: *name}, *ttl, time.Now())
	if err != nil {
		fmt.Printf("Error minting token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
