package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/babara6666/PDF-OCR-batch/internal/config"
	"github.com/babara6666/PDF-OCR-batch/internal/constants"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ocr-batch configuration",
		Long: `Configuration management commands for ocr-batch.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Probe the backend with the current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

func configPathOrDefault() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.GetDefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for ocr-batch.

The configuration is saved to ~/.config/ocr-batch/config.csv (or the
path given with --config). Secrets are never written to the file; set
OCR_BATCH_API_KEY, OCR_BATCH_PROXY_PASSWORD, OCR_BATCH_S3_SECRET_ACCESS_KEY
or AZURE_STORAGE_SAS_TOKEN instead.

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPathOrDefault()
			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Configuration already exists at: %s\n", path)
					fmt.Fprintln(cmd.OutOrStdout(), "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}
			cfg, err := runConfigInit(cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := config.SaveConfigCSV(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s Configuration saved to: %s\n", green("✓"), path)
			fmt.Fprintln(cmd.OutOrStdout(), "Test it with: ocr-batch config test")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// runConfigInit asks for every setting and returns the resulting config.
func runConfigInit(in io.Reader, out io.Writer) (*config.Config, error) {
	reader := bufio.NewReader(in)
	cfg := config.NewDefaultConfig()

	fmt.Fprintln(out, "ocr-batch Configuration Setup")
	fmt.Fprintln(out, "=============================")
	fmt.Fprintln(out)

	cfg.APIBaseURL = promptLine(reader, out, "Backend URL", constants.DefaultAPIBaseURL)
	cfg.IncludeCrop = promptYesNo(reader, out, "Request notes crop images", cfg.IncludeCrop)
	cfg.Notify = promptYesNo(reader, out, "Desktop notification when a batch finishes", false)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Export targets: dir, s3, azure")
	cfg.ExportTarget = strings.ToLower(promptLine(reader, out, "Export target", config.ExportTargetDir))
	switch cfg.ExportTarget {
	case config.ExportTargetS3:
		cfg.S3Bucket = promptLine(reader, out, "S3 bucket", "")
		cfg.S3Region = promptLine(reader, out, "S3 region", "us-east-1")
		cfg.S3Endpoint = promptLine(reader, out, "S3 endpoint (empty for AWS)", "")
		cfg.S3AccessKeyID = promptLine(reader, out, "S3 access key ID (empty for the default AWS chain)", "")
		cfg.ObjectPrefix = promptLine(reader, out, "Object prefix", "")
	case config.ExportTargetAzure:
		cfg.AzureAccountURL = promptLine(reader, out, "Azure account URL", "")
		cfg.AzureContainer = promptLine(reader, out, "Azure container", "")
		cfg.ObjectPrefix = promptLine(reader, out, "Object prefix", "")
	default:
		cfg.OutputDir = promptLine(reader, out, "Output directory", cfg.OutputDir)
	}

	fmt.Fprintln(out)
	if promptYesNo(reader, out, "Configure proxy?", false) {
		fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
		cfg.ProxyMode = promptLine(reader, out, "Proxy mode", "system")
		if cfg.ProxyMode != "no-proxy" && cfg.ProxyMode != "system" {
			cfg.ProxyHost = promptLine(reader, out, "Proxy host", "")
			cfg.ProxyPort = 8080
			if v, err := strconv.Atoi(promptLine(reader, out, "Proxy port", "8080")); err == nil && v > 0 {
				cfg.ProxyPort = v
			}
			cfg.ProxyUser = promptLine(reader, out, "Proxy user", "")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/ocr-batch/config.csv)
  2. Environment variables (OCR_BATCH_API_URL, OCR_BATCH_API_KEY, ...)
  3. Command-line flags (--api-url, --api-key)

Priority: flags > environment > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg, configPathOrDefault())
			return nil
		},
	}

	return cmd
}

// printConfig writes cfg without revealing any secret value.
func printConfig(w io.Writer, cfg *config.Config, path string) {
	secret := func(v string) string {
		if v == "" {
			return "<not set>"
		}
		return fmt.Sprintf("<set (%d chars)>", len(v))
	}

	fmt.Fprintln(w, "Current Configuration")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Backend:")
	fmt.Fprintf(w, "  Base URL:     %s\n", cfg.APIBaseURL)
	fmt.Fprintf(w, "  Full OCR:     %s\n", cfg.FullOCRPath)
	fmt.Fprintf(w, "  Notes:        %s\n", cfg.NotesPath)
	fmt.Fprintf(w, "  Health:       %s\n", cfg.HealthPath)
	fmt.Fprintf(w, "  API Key:      %s\n", secret(cfg.APIKey))
	fmt.Fprintf(w, "  Include crop: %t\n", cfg.IncludeCrop)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Export:")
	fmt.Fprintf(w, "  Target:       %s\n", cfg.ExportTarget)
	switch cfg.ExportTarget {
	case config.ExportTargetS3:
		fmt.Fprintf(w, "  Bucket:       %s\n", cfg.S3Bucket)
		fmt.Fprintf(w, "  Region:       %s\n", cfg.S3Region)
		if cfg.S3Endpoint != "" {
			fmt.Fprintf(w, "  Endpoint:     %s\n", cfg.S3Endpoint)
		}
		fmt.Fprintf(w, "  Secret key:   %s\n", secret(cfg.S3SecretAccessKey))
		fmt.Fprintf(w, "  Prefix:       %s\n", cfg.ObjectPrefix)
	case config.ExportTargetAzure:
		fmt.Fprintf(w, "  Account:      %s\n", cfg.AzureAccountURL)
		fmt.Fprintf(w, "  Container:    %s\n", cfg.AzureContainer)
		fmt.Fprintf(w, "  SAS token:    %s\n", secret(cfg.AzureSASToken))
		fmt.Fprintf(w, "  Prefix:       %s\n", cfg.ObjectPrefix)
	default:
		fmt.Fprintf(w, "  Directory:    %s\n", cfg.OutputDir)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Proxy Settings:")
	fmt.Fprintf(w, "  Proxy Mode: %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(w, "  Proxy Host: %s\n", cfg.ProxyHost)
		fmt.Fprintf(w, "  Proxy Port: %d\n", cfg.ProxyPort)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Notifications: %t\n", cfg.Notify)
	if cfg.MetricsFile != "" {
		fmt.Fprintf(w, "Metrics file:  %s\n", cfg.MetricsFile)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Configuration file: %s\n", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(w, "  (file does not exist - using defaults)")
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test the backend connection",
		Long: `Probe the backend health endpoint with the current configuration.

Use this to verify the URL, API key and proxy settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.OutOrStdout())
		},
	}

	return cmd
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if cfgFile == "" {
				fmt.Fprintln(out, "Default configuration path:")
			} else {
				fmt.Fprintln(out, "Configuration path (from --config flag):")
			}
			configPath := configPathOrDefault()
			fmt.Fprintf(out, "  %s\n\n", configPath)

			if info, err := os.Stat(configPath); err == nil {
				fmt.Fprintln(out, "Status: ✓ File exists")
				fmt.Fprintf(out, "Size:   %d bytes\n", info.Size())
				fmt.Fprintf(out, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Create a configuration file with: ocr-batch config init")
			}
			return nil
		},
	}

	return cmd
}
