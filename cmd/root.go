package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sysintegral/aerator-go/cmd/serve"
	"github.com/sysintegral/aerator-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aerator",
		Short: "Grain silo aeration decision server",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	rootCmd.AddCommand(serve.Command(settings))

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d",
		viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Main.Timezone, "timezone",
		viper.GetString("main.timezone"), "IANA timezone of the establishments' civil calendar")
	rootCmd.PersistentFlags().StringVarP(&settings.WebServer.Port, "port", "p",
		viper.GetString("webserver.port"), "Port for the HTTP API")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
