package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/nerrad567/gray-logic-shading/internal/auth"
	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/config"
)

// runToken prints a signed API access token. The secret comes from the
// configuration (or GRAYLOGIC_JWT_SECRET), so tokens verify against the
// running controller.
//
// Parameters:
//   - args: Command line after "token"
//   - out: Where the token is written
//
// Returns:
//   - error: Flag, config or signing failures
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "who the token is for, e.g. knx-gateway")
	role := fs.String("role", string(auth.RoleOperator), "viewer, operator or admin")
	ttl := fs.Int("ttl", 0, "lifetime in minutes (default security.jwt.access_token_ttl)")
	configPath := fs.String("config", getConfigPath(), "configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return fmt.Errorf("-subject is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *ttl <= 0 {
		*ttl = cfg.Security.JWT.AccessTokenTTL
	}

	token, err := auth.GenerateAccessToken(*subject, auth.Role(*role), cfg.Security.JWT.Secret, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
