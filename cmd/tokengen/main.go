// Command tokengen mints a bearer token for operators and local testing.
// The secret and issuer default to the service configuration (HOA_* variables
// and the HOA_CONFIG file); flags override them.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"estatehub.org/internal/auth"
	"estatehub.org/internal/community"
	"estatehub.org/internal/config"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cfg, err := config.Read()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("tokengen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		user   = fs.String("user", "", "Subject (user id)")
		role   = fs.String("role", string(community.RoleAdminOfficer), "Role: superadmin, admin_head, admin_officer, security, resident")
		tenant = fs.String("tenant", "", "Tenant id (required unless role is superadmin)")
		ttl    = fs.Duration("ttl", time.Hour, "Token lifetime")
		secret = fs.String("secret", cfg.AuthSecret, "Signing secret (default auth_secret)")
		issuer = fs.String("issuer", cfg.AuthIssuer, "Token issuer (default auth_issuer)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, ok := community.ParseRole(*role)
	if !ok {
		return fmt.Errorf("unknown role %q", *role)
	}
	tokens, err := auth.NewTokens(*secret, auth.WithIssuer(*issuer))
	if err != nil {
		return err
	}
	token, exp, err := tokens.Issue(*user, r, *tenant, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	fmt.Fprintf(stderr, "expires %s\n", exp.Format(time.RFC3339))
	return nil
}
