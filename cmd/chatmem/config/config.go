// Package configcmder provides the config command for managing persistent
// chatmem configuration stored in the .chatmem/ directory.
package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmem/pkg/cliui"
	"github.com/papercomputeco/chatmem/pkg/config"
)

const configLongDesc string = `Manage persistent chatmem configuration.

Configuration is stored as config.toml in the .chatmem/ directory and provides
default values for command flags. CLI flags and CHATMEM_ environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.backend, storage.sqlite_path, storage.postgres_dsn, storage.libsql_url,
  server.listen,
  generation.provider, generation.target, generation.model, generation.api_key,
  generation.max_tokens, generation.temperature, generation.top_p,
  context.max_pairs, context.max_tokens, context.enforce_limits,
  eventstream.kafka_brokers, eventstream.kafka_topic,
  client.api_target

Use subcommands to get, set, or list configuration values:
  chatmem config set <key> <value>    Set a configuration value
  chatmem config get <key>            Get a configuration value
  chatmem config list                 List all configuration values

Examples:
  chatmem config set generation.provider ollama
  chatmem config set generation.model llama3.2
  chatmem config get generation.provider
  chatmem config list`

const configShortDesc string = "Manage persistent chatmem configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// configDirFlag reads the inherited --config-dir flag, if registered.
func configDirFlag(cmd *cobra.Command) string {
	configDir, _ := cmd.Flags().GetString("config-dir")
	return configDir
}

func printTarget(w io.Writer, cfger *config.Configer) {
	target := cfger.GetTarget()
	if target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
	} else {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}
}
