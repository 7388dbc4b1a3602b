package main

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/germanamz/silk/pkg/engine"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// defaultConfigPath is used when --config is not given and the file exists.
const defaultConfigPath = "silk.yaml"

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "silk",
		Short:         "Chat endpoint that streams model replies and packages the project as a zip",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to configuration file (default: silk.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env", ".env", "path to .env file (ignored if missing)")

	cmd.AddCommand(
		newServeCmd(opts),
		newMCPCmd(opts),
		newArchiveCmd(opts),
	)

	return cmd
}

// load reads the .env file and configuration and builds the logger. Logs go
// to stderr so stdout stays free for the MCP transport and archive output.
func (o *rootOptions) load(stderr io.Writer) (engine.Config, *slog.Logger, error) {
	if err := loadDotEnv(o.envFile); err != nil {
		return engine.Config{}, nil, err
	}

	cfg, err := o.config()
	if err != nil {
		return engine.Config{}, nil, err
	}

	logger, err := engine.NewLogger(cfg.Log, stderr)
	if err != nil {
		return engine.Config{}, nil, err
	}

	return cfg, logger, nil
}

// config resolves the configuration: explicit flag, then silk.yaml, then
// built-in defaults.
func (o *rootOptions) config() (engine.Config, error) {
	path := o.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err != nil {
			return engine.DefaultConfig(), nil
		}
		path = defaultConfigPath
	}

	return engine.LoadConfig(path)
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}

	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
