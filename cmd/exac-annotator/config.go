package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change saved settings",
		Long: `Without a subcommand, print the settings a run would use: the config file,
EXAC_ANNOTATOR_* environment variables and built-in defaults merged together.
'set' writes a single key to ~/` + configFileName + ` (or --config) and leaves the
other keys in that file as they were.`,
		Example: `  exac-annotator config
  exac-annotator config set cache.path ~/.exac-annotator/cache.duckdb
  exac-annotator config set batch.size 500
  exac-annotator config get exac.url`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(stdout)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Save a setting to the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(stdout, args[0], args[1])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print the effective value of a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(stdout, args[0])
		},
	})

	return cmd
}

func runConfigShow(stdout io.Writer) error {
	settings := viper.AllSettings()
	if len(settings) == 0 {
		fmt.Fprintf(stdout, "# nothing set; settings are read from ~/%s\n", configFileName)
		return nil
	}

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if path, err := configPath(); err == nil {
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(stdout, "# %s\n", path)
		}
	}
	fmt.Fprint(stdout, string(out))
	return nil
}

// configPath is the file initConfig pointed viper at, or the default under $HOME.
func configPath() (string, error) {
	if used := viper.ConfigFileUsed(); used != "" {
		return used, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, configFileName), nil
}

// configValue types a command-line value for the YAML file. Only canonical
// decimal integers become numbers, so "0755" or "+1" stay strings.
func configValue(value string) any {
	switch value {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if n, err := strconv.Atoi(value); err == nil && strconv.Itoa(n) == value {
		return n
	}
	return value
}

// runConfigSet rewrites the config file with one key changed. It works on a
// separate viper instance holding only the file contents, so defaults, flags
// and environment variables are not copied into the file.
func runConfigSet(stdout io.Writer, key, value string) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	file := viper.New()
	file.SetConfigFile(path)
	if err := file.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading config: %w", err)
	}
	file.Set(key, configValue(value))

	if err := file.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(stdout, "Set %s = %s in %s\n", key, value, path)
	return nil
}

func runConfigGet(stdout io.Writer, key string) error {
	val := viper.Get(key)
	if val == nil {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Fprintln(stdout, val)
	return nil
}
