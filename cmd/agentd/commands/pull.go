package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull <model>",
	Short: "Download a model to its backend",
	Long: `Ask the backend that serves model to download it. Only backends that
manage local models (Ollama) support this.

Examples:
  agentd pull llama3.2:latest
  agentd pull ollama/llama3.2-vision:latest`,
	Args: cobra.ExactArgs(1),
	RunE: runPull,
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	backend, err := newBackend(ctx, appConfig)
	if err != nil {
		return err
	}

	fmt.Printf("Pulling %s...\n", args[0])
	if err := backend.PullModel(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to pull %s: %w", args[0], err)
	}
	fmt.Println("Done")
	return nil
}
