// Package main mints a signed access token for local development.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/blok13/clanportal/config"
	"github.com/blok13/clanportal/internal/auth"
	"github.com/blok13/clanportal/internal/models"
)

func main() {
	uid := flag.String("uid", "", "user id (random when empty)")
	name := flag.String("name", "Dev", "display name")
	role := flag.String("role", string(models.RoleMember), "admin, member or user")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if !models.Role(*role).Valid() {
		fmt.Fprintln(os.Stderr, "unknown role:", *role)
		os.Exit(2)
	}

	id := uuid.New()
	if *uid != "" {
		if id, err = uuid.Parse(*uid); err != nil {
			fmt.Fprintln(os.Stderr, "invalid uid:", err)
			os.Exit(2)
		}
	}

	token, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours).Generate(id, *name, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign token:", err)
		os.Exit(1)
	}
	fmt.Printf("user_id=%s\n%s\n", id, token)
}
