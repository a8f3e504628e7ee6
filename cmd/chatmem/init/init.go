// Package initcmder provides the init command for initializing a local
// .chatmem directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmem/pkg/cliui"
	"github.com/papercomputeco/chatmem/pkg/config"
)

const (
	dirName    = ".chatmem"
	configFile = "config.toml"
)

const initLongDesc string = `Initialize a new .chatmem/ directory in the current working directory.

Creates a local .chatmem/ directory that takes precedence over the default
~/.chatmem/ directory for configuration, the SQLite database and the
interactive chat state, and writes a config.toml into it.

Use --preset to start from a generation backend preset (llamacpp, ollama,
openai) or from a config.toml fetched over HTTP(S).

Examples:
  chatmem init
  chatmem init --preset ollama
  chatmem init --preset https://example.com/chatmem/config.toml`

const initShortDesc string = "Initialize a local .chatmem/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.Context(), cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Preset name ("+strings.Join(config.ValidPresetNames(), ", ")+") or URL of a config.toml")

	return cmd
}

func runInit(ctx context.Context, w io.Writer, preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .chatmem directory: %w", err)
	}

	path := filepath.Join(dir, configFile)
	_, statErr := os.Stat(path)
	exists := statErr == nil

	// An existing config is only replaced when a preset is asked for.
	if exists && preset == "" {
		fmt.Fprintf(w, "Already initialized: %s\n", dir)
		return nil
	}

	data, err := configFor(ctx, preset)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(w, "  %s Initialized .chatmem directory: %s\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
	return nil
}

// configFor returns the config.toml contents for preset: defaults when it is
// empty, a remote file when it is a URL, a named preset otherwise.
func configFor(ctx context.Context, preset string) ([]byte, error) {
	var cfg *config.Config

	switch {
	case preset == "":
		cfg = config.NewDefaultConfig()

	case strings.HasPrefix(preset, "http://") || strings.HasPrefix(preset, "https://"):
		data, err := fetch(ctx, preset)
		if err != nil {
			return nil, err
		}
		// Validate before writing anything.
		if _, err := config.ParseConfigTOML(data); err != nil {
			return nil, fmt.Errorf("remote config %s: %w", preset, err)
		}
		return data, nil

	default:
		var err error
		cfg, err = config.PresetConfig(preset)
		if err != nil {
			return nil, err
		}
	}

	return config.EncodeConfigTOML(cfg)
}

func fetch(ctx context.Context, url string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading remote config: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("remote config is empty")
	}
	return data, nil
}
