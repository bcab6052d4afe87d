// ABOUTME: Interactive config file generation for devicefarm-gateway
// ABOUTME: Prompts for listener, database, tailscale, admin and logging settings

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/devicefarm-gateway/internal/config"
)

// configOptions are the values written into a generated config file.
type configOptions struct {
	Generator   string
	HTTPAddr    string
	DBPath      string
	JWTSecret   string
	Admins      []string
	AdminPolicy string
	LogLevel    string
	LogFormat   string

	Tailscale   bool
	TSHostname  string
	TSAuthKey   string
	TSEphemeral bool
	TSHTTPS     bool
	TSFunnel    bool
	BusBuffer   int
}

// renderConfig produces a YAML config file from opts.
func renderConfig(opts configOptions) string {
	var cfg strings.Builder
	cfg.WriteString("# devicefarm-gateway configuration\n")
	fmt.Fprintf(&cfg, "# Generated by devicefarm-gateway %s\n\n", opts.Generator)

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  http_addr: %q\n", opts.HTTPAddr)
	fmt.Fprintf(&cfg, "  request_timeout: %q\n", config.DefaultRequestTimeout.String())
	fmt.Fprintf(&cfg, "  shutdown_timeout: %q\n", config.DefaultShutdownTimeout.String())
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  path: %q\n", opts.DBPath)
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", opts.Tailscale)
	if opts.Tailscale {
		fmt.Fprintf(&cfg, "  hostname: %q\n", opts.TSHostname)
		if opts.TSAuthKey != "" {
			fmt.Fprintf(&cfg, "  auth_key: %q\n", opts.TSAuthKey)
		}
		fmt.Fprintf(&cfg, "  ephemeral: %t\n", opts.TSEphemeral)
		fmt.Fprintf(&cfg, "  https: %t\n", opts.TSHTTPS)
		fmt.Fprintf(&cfg, "  funnel: %t\n", opts.TSFunnel)
	}
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	fmt.Fprintf(&cfg, "  jwt_secret: %q\n", opts.JWTSecret)
	policy := opts.AdminPolicy
	if policy == "" {
		policy = "any"
	}
	fmt.Fprintf(&cfg, "  admin_policy: %q\n", policy)
	if len(opts.Admins) > 0 {
		cfg.WriteString("  admins:\n")
		for _, a := range opts.Admins {
			fmt.Fprintf(&cfg, "    - %q\n", a)
		}
	}
	cfg.WriteString("\n")

	buffer := opts.BusBuffer
	if buffer <= 0 {
		buffer = config.DefaultBusBufferSize
	}
	cfg.WriteString("bus:\n")
	fmt.Fprintf(&cfg, "  buffer_size: %d\n", buffer)
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", opts.LogLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", opts.LogFormat)

	return cfg.String()
}

func runInit(in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("devicefarm-gateway configuration setup")
	fmt.Println("======================================")
	fmt.Println()

	defaultDBPath := filepath.Join(getDataPath(), "gateway.db")

	outputFile := prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}
	opts := configOptions{Generator: "init", JWTSecret: secret}

	fmt.Println("\n--- Server Configuration ---")
	opts.HTTPAddr = prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	fmt.Println("\n--- Database Configuration ---")
	opts.DBPath = prompt(reader, "SQLite database path", defaultDBPath)

	fmt.Println("\n--- Tailscale Configuration ---")
	opts.Tailscale = yes(prompt(reader, "Enable Tailscale?", "no"))
	if opts.Tailscale {
		opts.TSHostname = prompt(reader, "Tailscale hostname", "devicefarm-gateway")
		opts.TSAuthKey = prompt(reader, "Tailscale auth key (leave empty for interactive)", "")
		opts.TSEphemeral = yes(prompt(reader, "Ephemeral node?", "no"))
		opts.TSFunnel = yes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
		if !opts.TSFunnel {
			opts.TSHTTPS = yes(prompt(reader, "Serve HTTPS on the tailnet?", "no"))
		}
	}

	fmt.Println("\n--- Admin Configuration ---")
	opts.AdminPolicy = prompt(reader, "Admin policy (static/roles/any)", "any")
	if admins := prompt(reader, "Admin emails (comma separated)", ""); admins != "" {
		for _, a := range strings.Split(admins, ",") {
			if a = strings.TrimSpace(a); a != "" {
				opts.Admins = append(opts.Admins, a)
			}
		}
	}

	fmt.Println("\n--- Logging Configuration ---")
	opts.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	opts.LogFormat = prompt(reader, "Log format (text/json)", "text")

	content := renderConfig(opts)
	if _, err := config.Parse([]byte(content), false); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(opts.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  devicefarm-gateway serve\n")

	return nil
}

func yes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
