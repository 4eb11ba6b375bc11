package main

import (
	"fmt"
	"os"

	"serenity-catalog/internal/client"
	"serenity-catalog/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	apiURL  string
	token   string
	verbose bool
	log     *zap.Logger
)

const defaultAPIURL = "http://localhost:8080"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "catalogctl",
	Short:         "Manage the product catalog from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadEnv(cmd)

		level := zapcore.WarnLevel
		if verbose {
			level = zapcore.DebugLevel
		}
		log = logger.NewJSON(os.Stderr, level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultAPIURL, "catalog API base URL (CATALOG_API_URL)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (CATALOG_TOKEN)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log requests to stderr")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(uploadCmd)
}

// loadEnv reads .env files into the environment, then fills the flags the user
// did not pass on the command line. Variables already exported are kept.
func loadEnv(cmd *cobra.Command, files ...string) {
	_ = godotenv.Load(files...)

	if v := os.Getenv("CATALOG_API_URL"); v != "" && !cmd.Flags().Changed("api") {
		apiURL = v
	}
	if v := os.Getenv("CATALOG_TOKEN"); v != "" && !cmd.Flags().Changed("token") {
		token = v
	}
}

// newClient builds an API client carrying the configured token
func newClient() *client.Client {
	c := client.New(apiURL, nil)
	c.SetToken(token)
	return c
}
