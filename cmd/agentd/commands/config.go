package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ashosive/agent-runtime/internal/config"
)

var (
	configJSON  bool
	configForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or initialise configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, config files, .env and
environment overrides have been applied. API keys are masked.`,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the effective configuration to a file",
	Long: `Write the effective configuration to path, or to the global config
file when no path is given. The extension selects YAML or JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

func init() {
	configShowCmd.Flags().BoolVar(&configJSON, "json", false, "Print JSON instead of YAML")
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := *appConfig
	cfg.Backend.APIKey = mask(cfg.Backend.APIKey)
	cfg.Backends = make([]config.BackendConfig, len(appConfig.Backends))
	for i, b := range appConfig.Backends {
		b.APIKey = mask(b.APIKey)
		cfg.Backends[i] = b
	}

	var (
		data []byte
		err  error
	)
	if configJSON {
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.GlobalConfigPath()
	if len(args) > 0 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(appConfig, path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func mask(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
