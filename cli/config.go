// ABOUTME: Config CLI commands
// ABOUTME: Shows the effective configuration and writes a starter config file
package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/jpchacon09/APOLLO/config"
)

// ConfigShowCommand prints the effective configuration with the key masked
func ConfigShowCommand(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("config show", flag.ExitOnError)
	_ = fs.Parse(args)

	out := *cfg
	out.APIKey = cfg.MaskedAPIKey()

	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// ConfigInitCommand writes the default configuration to disk
func ConfigInitCommand(args []string) error {
	fs := flag.NewFlagSet("config init", flag.ExitOnError)
	path := fs.String("path", config.DefaultPath(), "Config file to write")
	force := fs.Bool("force", false, "Overwrite an existing config file")
	_ = fs.Parse(args)

	if _, err := os.Stat(*path); err == nil && !*force {
		fmt.Printf("Config already exists at %s\n", *path)
		fmt.Println("To overwrite, run: platam config init --force")
		return nil
	}

	if err := config.Save(config.Default(), *path); err != nil {
		return err
	}
	fmt.Printf("✓ Configuration saved to %s\n", *path)
	fmt.Println("\nNext step: export APOLLO_API_KEY or add it to .env")
	return nil
}
