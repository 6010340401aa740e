package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/babara6666/PDF-OCR-batch/internal/api"
	"github.com/babara6666/PDF-OCR-batch/internal/http"
)

// newHealthCmd creates the 'health' command.
func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the OCR backend is reachable",
		Long: `Probe the backend health endpoint. The probe is retried with backoff
(health_retries in the config); batch submissions never are.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.OutOrStdout())
		},
	}
}

func runHealth(out io.Writer) error {
	log := GetLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	httpClient, err := http.CreateOptimizedClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure HTTP client: %w", err)
	}
	client, err := api.NewClientWithHTTP(cfg, httpClient, log)
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}

	fmt.Fprintf(out, "Backend: %s\n", client.BaseURL())
	status, err := client.Health(GetContext())
	if err != nil {
		log.Error().Err(err).Msg("Health check failed")
		fmt.Fprintf(out, "%s Backend unreachable: %v\n", red("✗"), err)
		return fmt.Errorf("health check failed")
	}

	mark := green("✓")
	if !status.Healthy() {
		mark = yellow("!")
	}
	fmt.Fprintf(out, "%s Status:       %s\n", mark, status.Status)
	fmt.Fprintf(out, "  Model loaded: %t\n", status.ModelLoaded)
	if status.Device != "" {
		fmt.Fprintf(out, "  Device:       %s\n", status.Device)
	}
	return nil
}
