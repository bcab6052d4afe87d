// ABOUTME: Admin CLI for devicefarm-gateway credential provisioning
// ABOUTME: Issues and revokes access tokens and adb keys over the HTTP API

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
)

const banner = `
     _            _            __                                 _           _
  __| | _____   _(_) ___ ___  / _| __ _ _ __ _ __ ___         __ _| |_ __ ___ (_)_ __
 / _' |/ _ \ \ / / |/ __/ _ \| |_ / _' | '__| '_ ' _ \ _____ / _' | | '_ ' _ \| | '_ \
| (_| |  __/\ V /| | (_|  __/|  _| (_| | |  | | | | | |_____| (_| | | | | | | | | | | |
 \__,_|\___| \_/ |_|\___\___||_|  \__,_|_|  |_| |_| |_|      \__,_|_|_| |_| |_|_|_| |_|
`

const defaultURL = "http://localhost:8080"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := newAPIClient(getEnv("DEVICEFARM_URL", defaultURL), getToken())
	out := color.Output

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "me":
		err = cmdMe(ctx, client, out)
	case "token":
		err = cmdToken(ctx, client, args, out)
	case "adbkey":
		err = cmdAdbKey(ctx, client, args, out)
	case "drain":
		err = cmdDrain(ctx, client, true, out)
	case "undrain":
		err = cmdDrain(ctx, client, false, out)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: devicefarm-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  me                      Show your identity and whether you are an admin")
	fmt.Println("  token create            Issue an access token for a user")
	fmt.Println("  token delete            Revoke a user's access token by title")
	fmt.Println("  adbkey add              Register an adb public key for a user")
	fmt.Println("  adbkey delete           Remove a user's adb key by fingerprint")
	fmt.Println("  drain                   Mark the gateway not ready")
	fmt.Println("  undrain                 Mark the gateway ready again")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  DEVICEFARM_URL          Gateway base URL (default: http://localhost:8080)")
	fmt.Println("  DEVICEFARM_TOKEN        Bearer token (JWT or access token id)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  devicefarm-admin token create --email dev@example.com")
	fmt.Println("  devicefarm-admin token delete --email dev@example.com --title dev-0f3a...")
	fmt.Println("  devicefarm-admin adbkey add --email dev@example.com --key-file ~/.android/adbkey.pub")
	fmt.Println("  devicefarm-admin adbkey delete --email dev@example.com --fingerprint 6f:2b:...")
	fmt.Println()
}

// parseFlags parses args, treating --help as a request to stop quietly.
func parseFlags(flagSet *pflag.FlagSet, args []string) (bool, error) {
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	if flagSet.NArg() > 0 {
		return false, fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}
	return true, nil
}

func requireToken(c *apiClient) error {
	if c.token == "" {
		return fmt.Errorf("DEVICEFARM_TOKEN environment variable or token file is required")
	}
	return nil
}

// cmdMe shows the caller's identity.
func cmdMe(ctx context.Context, c *apiClient, w io.Writer) error {
	if err := requireToken(c); err != nil {
		return err
	}

	me, err := c.me(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(w)
	cyan.Fprintln(w, "  Identity")
	cyan.Fprintln(w, "  --------")
	fmt.Fprintf(w, "  Email:  %s\n", me.Email)
	fmt.Fprintf(w, "  Name:   %s\n", me.Name)
	fmt.Fprintf(w, "  Group:  %s\n", me.Group)
	if me.Admin {
		color.New(color.FgGreen).Fprintln(w, "  Admin:  yes")
	} else {
		fmt.Fprintln(w, "  Admin:  no")
	}
	fmt.Fprintln(w)
	return nil
}

// cmdToken handles token subcommands.
func cmdToken(ctx context.Context, c *apiClient, args []string, w io.Writer) error {
	if err := requireToken(c); err != nil {
		return err
	}

	subcmd := ""
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "create":
		return cmdTokenCreate(ctx, c, args, w)
	case "delete":
		return cmdTokenDelete(ctx, c, args, w)
	default:
		return fmt.Errorf("usage: token create --email <email> | token delete --email <email> --title <title>")
	}
}

func cmdTokenCreate(ctx context.Context, c *apiClient, args []string, w io.Writer) error {
	flagSet := pflag.NewFlagSet("token create", pflag.ContinueOnError)
	email := flagSet.StringP("email", "e", "", "user to issue the token for")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	if *email == "" {
		return fmt.Errorf("usage: token create --email <email>")
	}

	res, err := c.createAccessToken(ctx, *email)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	fmt.Fprintln(w)
	green.Fprintln(w, "  Token created successfully")
	fmt.Fprintln(w)
	cyan.Fprintln(w, "  User:   "+*email)
	cyan.Fprintln(w, "  Title:  "+res.Title)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Token (keep this secret!):")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  "+res.Token)
	fmt.Fprintln(w)
	return nil
}

func cmdTokenDelete(ctx context.Context, c *apiClient, args []string, w io.Writer) error {
	flagSet := pflag.NewFlagSet("token delete", pflag.ContinueOnError)
	email := flagSet.StringP("email", "e", "", "owner of the token")
	title := flagSet.StringP("title", "t", "", "title of the token to revoke")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	if *email == "" || *title == "" {
		return fmt.Errorf("usage: token delete --email <email> --title <title>")
	}

	if err := c.deleteAccessToken(ctx, *email, *title); err != nil {
		return err
	}

	color.New(color.FgGreen).Fprintf(w, "Revoked token %s for %s\n", *title, *email)
	return nil
}

// cmdAdbKey handles adbkey subcommands.
func cmdAdbKey(ctx context.Context, c *apiClient, args []string, w io.Writer) error {
	if err := requireToken(c); err != nil {
		return err
	}

	subcmd := ""
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "add":
		return cmdAdbKeyAdd(ctx, c, args, w)
	case "delete":
		return cmdAdbKeyDelete(ctx, c, args, w)
	default:
		return fmt.Errorf("usage: adbkey add --email <email> (--key-file <path> | --key <key>) [--title <title>] | adbkey delete --email <email> --fingerprint <fp>")
	}
}

func cmdAdbKeyAdd(ctx context.Context, c *apiClient, args []string, w io.Writer) error {
	flagSet := pflag.NewFlagSet("adbkey add", pflag.ContinueOnError)
	email := flagSet.StringP("email", "e", "", "user to register the key for")
	keyFile := flagSet.StringP("key-file", "f", "", "path to an adbkey.pub file")
	key := flagSet.StringP("key", "k", "", "public key in adb format")
	title := flagSet.StringP("title", "t", "", "title for the key (defaults to the key comment)")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	if *email == "" {
		return fmt.Errorf("usage: adbkey add --email <email> (--key-file <path> | --key <key>)")
	}

	publicKey, err := readPublicKey(*key, *keyFile)
	if err != nil {
		return err
	}

	res, err := c.addAdbKey(ctx, *email, publicKey, *title)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	fmt.Fprintln(w)
	green.Fprintln(w, "  Adb key registered")
	fmt.Fprintln(w)
	cyan.Fprintln(w, "  User:         "+*email)
	cyan.Fprintln(w, "  Title:        "+res.Title)
	cyan.Fprintln(w, "  Fingerprint:  "+res.Fingerprint)
	fmt.Fprintln(w)
	return nil
}

func cmdAdbKeyDelete(ctx context.Context, c *apiClient, args []string, w io.Writer) error {
	flagSet := pflag.NewFlagSet("adbkey delete", pflag.ContinueOnError)
	email := flagSet.StringP("email", "e", "", "owner of the key")
	fingerprint := flagSet.String("fingerprint", "", "fingerprint of the key to remove")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	if *email == "" || *fingerprint == "" {
		return fmt.Errorf("usage: adbkey delete --email <email> --fingerprint <fp>")
	}

	if err := c.deleteAdbKey(ctx, *email, *fingerprint); err != nil {
		return err
	}

	color.New(color.FgGreen).Fprintf(w, "Removed adb key %s from %s\n", *fingerprint, *email)
	return nil
}

// cmdDrain toggles gateway readiness.
func cmdDrain(ctx context.Context, c *apiClient, drain bool, w io.Writer) error {
	if err := requireToken(c); err != nil {
		return err
	}

	path := "/admin/undrain"
	if drain {
		path = "/admin/drain"
	}
	status, err := c.doStatus(ctx, http.MethodPost, path)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, status)
	return nil
}

// readPublicKey returns the inline key, or the contents of path when no
// inline key was given.
func readPublicKey(inline, path string) (string, error) {
	if inline != "" && path != "" {
		return "", fmt.Errorf("--key and --key-file are mutually exclusive")
	}
	if inline != "" {
		return strings.TrimSpace(inline), nil
	}
	if path == "" {
		return "", fmt.Errorf("one of --key or --key-file is required")
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading key file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getToken returns the bearer from DEVICEFARM_TOKEN, or from the token file
// devicefarm-gateway bootstrap writes next to its config.
func getToken() string {
	if token := os.Getenv("DEVICEFARM_TOKEN"); token != "" {
		return token
	}

	var tokenPath string
	if cfgPath := os.Getenv("DEVICEFARM_CONFIG"); cfgPath != "" {
		tokenPath = filepath.Join(filepath.Dir(cfgPath), "token")
	} else {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return ""
			}
			configDir = filepath.Join(homeDir, ".config")
		}
		tokenPath = filepath.Join(configDir, "devicefarm", "token")
	}

	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
