package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var modelsVerbose bool

var modelsCmd = &cobra.Command{
	Use:   "models [backend]",
	Short: "List available models",
	Long: `List the models every configured backend reports.

Examples:
  agentd models              # List all models
  agentd models ollama       # List only Ollama models
  agentd models --verbose    # Show size and digest`,
	RunE: runModels,
}

func init() {
	modelsCmd.Flags().BoolVarP(&modelsVerbose, "verbose", "v", false, "Include size, family and digest")
}

func runModels(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	backend, err := newBackend(ctx, appConfig)
	if err != nil {
		return err
	}

	var backendFilter string
	if len(args) > 0 {
		backendFilter = args[0]
	}

	models, err := backend.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	if modelsVerbose {
		fmt.Fprintln(w, "BACKEND\tMODEL\tFAMILY\tSIZE\tDIGEST\t")
	} else {
		fmt.Fprintln(w, "BACKEND\tMODEL\t")
	}

	for _, model := range models {
		if backendFilter != "" && model.Backend != backendFilter {
			continue
		}

		if modelsVerbose {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
				model.Backend,
				model.Name,
				deref(model.Family),
				formatSize(model.Size),
				shortDigest(deref(model.Digest)),
			)
		} else {
			fmt.Fprintf(w, "%s\t%s\t\n", model.Backend, model.Name)
		}
	}

	return w.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func formatSize(size *uint64) string {
	if size == nil {
		return "-"
	}
	const gb = 1 << 30
	if *size >= gb {
		return fmt.Sprintf("%.1f GB", float64(*size)/gb)
	}
	return fmt.Sprintf("%d MB", *size>>20)
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
