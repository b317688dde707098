// Command admintoken mints a bearer token for the API's admin routes using
// the same JWT_SECRET, JWT_ISSUER and JWT_AUDIENCE as the server.
package main

import (
	"fmt"
	"os"

	"github.com/alim08/market_pulse/pkg/auth"
	"github.com/alim08/market_pulse/pkg/config"
)

func main() {
	cfg, err := config.LoadToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "admintoken: %v\n", err)
		os.Exit(2)
	}

	token, err := mint(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "admintoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func mint(cfg *config.TokenConfig) (string, error) {
	svc, err := auth.NewAuthService(auth.Config{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Expiration: cfg.TTL,
	})
	if err != nil {
		return "", err
	}
	return svc.GenerateToken(cfg.Subject, cfg.Roles)
}
