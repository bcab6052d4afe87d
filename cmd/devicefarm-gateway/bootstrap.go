// ABOUTME: First-run setup: writes a config if missing, grants the owner role, and issues a token
// ABOUTME: The token is saved next to the config file for devicefarm-admin to pick up

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/2389/devicefarm-gateway/internal/auth"
	"github.com/2389/devicefarm-gateway/internal/config"
	"github.com/2389/devicefarm-gateway/internal/store"
)

// bootstrapActor is the audit actor recorded for bootstrap grants.
const bootstrapActor = "bootstrap"

var errAlreadyBootstrapped = errors.New("bootstrap already complete")

// runBootstrap performs first-time setup of the gateway:
// 1. Creates config file with random JWT secret (if not exists)
// 2. Creates the owner's user record and grants the owner role
// 3. Signs a JWT for the owner and saves it next to the config
func runBootstrap(ctx context.Context, args []string) error {
	flagSet := pflag.NewFlagSet("bootstrap", pflag.ContinueOnError)
	email := flagSet.StringP("email", "e", "", "email of the initial owner")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	ownerEmail := strings.TrimSpace(*email)
	if ownerEmail == "" {
		return fmt.Errorf("--email flag is required")
	}
	if !strings.Contains(ownerEmail, "@") {
		return fmt.Errorf("invalid email: %s", ownerEmail)
	}

	configPath := getConfigPath()
	dbPath := filepath.Join(getDataPath(), "gateway.db")

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	created, err := ensureConfig(configPath, dbPath, ownerEmail)
	if err != nil {
		return err
	}
	if created {
		green.Printf("  ✓ Created config: %s\n", configPath)
	} else {
		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	signer, err := auth.NewJWTSigner([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT signer: %w", err)
	}

	token, err := bootstrapOwner(ctx, s, signer, ownerEmail)
	if err != nil {
		return err
	}

	green.Printf("  ✓ Granted owner role: %s\n", ownerEmail)

	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green.Printf("  ✓ Saved token: %s\n", tokenPath)

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Owner")
	cyan.Println("  -----")
	fmt.Printf("  Email:  %s\n", ownerEmail)
	fmt.Printf("  Name:   %s\n", auth.NameFromEmail(ownerEmail))
	fmt.Printf("  Roles:  owner\n")
	fmt.Printf("  Token:  %s\n", tokenPath)
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    devicefarm-gateway serve    # start the gateway")
	fmt.Println("    devicefarm-admin me         # verify your identity")
	fmt.Println()

	return nil
}

// ensureConfig writes a fresh config naming ownerEmail as an admin unless
// one already exists at path. It reports whether a file was written.
func ensureConfig(path, dbPath, ownerEmail string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("checking config: %w", err)
	}

	secret, err := generateSecret()
	if err != nil {
		return false, err
	}

	content := renderConfig(configOptions{
		Generator: "bootstrap",
		HTTPAddr:  config.DefaultHTTPAddr,
		DBPath:    dbPath,
		JWTSecret: secret,
		Admins:    []string{ownerEmail},
		LogLevel:  "info",
		LogFormat: "text",
	})

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return false, fmt.Errorf("writing config file: %w", err)
	}
	return true, nil
}

// bootstrapOwner creates the owner's directory entry, grants the owner
// role and returns a signed JWT for it. It refuses to run twice for the
// same email.
func bootstrapOwner(ctx context.Context, s store.Store, signer auth.Signer, email string) (string, error) {
	has, err := s.HasRole(ctx, email, store.RoleOwner)
	if err != nil {
		return "", fmt.Errorf("checking roles: %w", err)
	}
	if has {
		return "", fmt.Errorf("%w: %s is already an owner", errAlreadyBootstrapped, email)
	}

	name := auth.NameFromEmail(email)
	user := &store.User{
		Email: email,
		Name:  name,
		Group: strings.ReplaceAll(uuid.New().String(), "-", ""),
	}
	if _, err := s.CreateUserIfAbsent(ctx, user); err != nil {
		return "", fmt.Errorf("creating user: %w", err)
	}

	if err := s.AddRole(ctx, email, store.RoleOwner); err != nil {
		return "", fmt.Errorf("granting owner role: %w", err)
	}

	if err := s.AppendAuditLog(ctx, &store.AuditEntry{
		Actor:      bootstrapActor,
		Action:     store.AuditGrantRole,
		TargetType: "role",
		TargetID:   email,
		Detail:     map[string]any{"role": string(store.RoleOwner)},
	}); err != nil {
		return "", fmt.Errorf("writing audit log: %w", err)
	}

	token, err := signer.Sign(auth.Identity{Email: email, Name: name})
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// generateSecret returns 32 random bytes, base64 encoded.
func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}
