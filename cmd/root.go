/*
Copyright © 2024 Dean
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"docbuddy/src/infrastructure/log"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docbuddy",
	Short: "Documentation assistant backed by retrieval-augmented generation",
	Long: `docbuddy ingests plain text API documentation into a vector store and
answers questions about it with an LLM, keeping a transcript per chat session.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./docbuddy.yaml)")
	settingDefaultConfig()
}

func initConfig() error {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("docbuddy")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := log.Configure(viper.GetString("log.level"), viper.GetBool("log.development")); err != nil {
		return err
	}
	if f := viper.ConfigFileUsed(); f != "" {
		log.Info("Using config file", "path", f)
	}
	return nil
}
