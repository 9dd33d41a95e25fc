package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/lucid-weaver/backend/internal/app"
	"github.com/zhouzirui/lucid-weaver/backend/internal/config"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "weaver",
	Short: "Interpret dreams from the terminal",
	Long: `weaver - Lucid Weaver on the command line.

Describe a dream and weaver returns a written interpretation, a generated
image and an optional spoken narration. Follow-up questions about the
dream can be asked in an interactive chat.

Examples:
  # Store the Gemini API key once
  weaver key set YOUR_KEY

  # Interpret a dream and save the picture
  weaver dream "I was flying over a silver ocean" --image-out dream.jpg

  # Read the dream from a file and keep talking about it
  weaver dream -f dream.txt --chat

  # Run the HTTP API
  weaver serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides WEAVER_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")
}

func initEnv() {
	if envFile != "" {
		// .env 文件可选，不存在时直接使用进程环境变量
		_ = godotenv.Load(envFile)
	}
	if configPath != "" {
		_ = os.Setenv("WEAVER_CONFIG", configPath)
	}
}

// loadConfig reads configuration for commands that need it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openApp builds the in-process pipeline. Callers must Close the result.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}
