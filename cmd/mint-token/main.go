// Command mint-token prints a player token signed with the configured secret,
// for exercising the API locally without the account service.
package main

import (
	"flag"
	"fmt"
	"os"

	"roshamble/internal/auth"
	"roshamble/internal/config"
	"roshamble/internal/models"
)

func main() {
	id := flag.String("id", "", "player id (required)")
	username := flag.String("username", "", "display name")
	skill := flag.Int("skill", 1000, "skill rating")
	flag.Parse()

	if *id == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(config.GetEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Environment == "prod" {
		fmt.Fprintln(os.Stderr, "Refusing to mint tokens for prod")
		os.Exit(1)
	}

	token, err := auth.NewJWTService(cfg.Auth.TokenSecret).GenerateToken(models.PlayerIdentity{
		ID:          *id,
		Username:    *username,
		SkillRating: *skill,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
