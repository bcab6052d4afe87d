// ABOUTME: Local role management: grants or revokes admin roles directly in the gateway database
// ABOUTME: Used with the roles admin policy; every change is written to the audit log

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/devicefarm-gateway/internal/auth"
	"github.com/2389/devicefarm-gateway/internal/config"
	"github.com/2389/devicefarm-gateway/internal/store"
)

// roleActor is the audit actor recorded for changes made from this command.
const roleActor = "cli"

// RoleStore is the subset of the store role changes need.
type RoleStore interface {
	AddRole(ctx context.Context, email string, role store.RoleName) error
	RemoveRole(ctx context.Context, email string, role store.RoleName) error
	ListRoles(ctx context.Context, email string) ([]store.RoleName, error)
	AppendAuditLog(ctx context.Context, e *store.AuditEntry) error
}

func printRoleUsage() {
	fmt.Println("Usage: devicefarm-gateway role <grant|revoke> --email EMAIL [--role ROLE]")
	fmt.Println()
	fmt.Println("Roles: owner, admin, member (default admin)")
}

// runRole handles `devicefarm-gateway role grant|revoke`.
func runRole(ctx context.Context, args []string) error {
	if len(args) < 1 {
		printRoleUsage()
		return errors.New("missing role action")
	}
	action := args[0]
	if action != "grant" && action != "revoke" {
		printRoleUsage()
		return fmt.Errorf("unknown role action: %s", action)
	}

	flagSet := pflag.NewFlagSet("role "+action, pflag.ContinueOnError)
	email := flagSet.StringP("email", "e", "", "email of the user")
	role := flagSet.StringP("role", "r", string(store.RoleAdmin), "role to "+action)
	if err := flagSet.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	target := strings.TrimSpace(*email)
	if target == "" {
		return errors.New("--email flag is required")
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	roles, err := changeRole(ctx, s, action == "grant", target, store.RoleName(*role))
	if err != nil {
		return err
	}

	verb := "Granted"
	if action == "revoke" {
		verb = "Revoked"
	}
	color.New(color.FgGreen).Printf("  ✓ %s %s: %s\n", verb, *role, target)
	fmt.Printf("  Roles: %s\n", formatRoles(roles))
	if policyName(cfg.Auth.AdminPolicy) == auth.PolicyStatic {
		color.New(color.FgYellow).Fprintln(os.Stderr, "  Note: auth.admin_policy is static; roles are not consulted")
	}
	return nil
}

// changeRole grants or revokes role for email, records the change in the
// audit log and returns the roles email holds afterwards.
func changeRole(ctx context.Context, s RoleStore, grant bool, email string, role store.RoleName) ([]store.RoleName, error) {
	if !store.IsValidRole(role) {
		return nil, fmt.Errorf("invalid role: %s", role)
	}

	auditAction := store.AuditGrantRole
	if grant {
		if err := s.AddRole(ctx, email, role); err != nil {
			return nil, fmt.Errorf("granting role: %w", err)
		}
	} else {
		auditAction = store.AuditRevokeRole
		if err := s.RemoveRole(ctx, email, role); err != nil {
			return nil, fmt.Errorf("revoking role: %w", err)
		}
	}

	if err := s.AppendAuditLog(ctx, &store.AuditEntry{
		Actor:      roleActor,
		Action:     auditAction,
		TargetType: "role",
		TargetID:   email,
		Detail:     map[string]any{"role": string(role)},
	}); err != nil {
		return nil, fmt.Errorf("writing audit log: %w", err)
	}

	return s.ListRoles(ctx, email)
}

func formatRoles(roles []store.RoleName) string {
	if len(roles) == 0 {
		return "(none)"
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
