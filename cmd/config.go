package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"argus-master/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or save the console configuration",
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Check the registration service and save the settings to the config file",
	Long: `Contacts the registration service with the current settings (flags, env
and any existing file), reports how many cameras it knows, and writes every
setting to the config file so later commands can run without flags.`,
	Example: `  argus-master config init --registry http://10.0.0.2:8082/registration --image-dir /data/shots`,
	Run: func(cmd *cobra.Command, args []string) {
		con := setupConsole()

		fmt.Printf("Contacting registration service at %s...\n", con.cfg.RegistryURL)
		cameras := con.registry.ListCameras(context.Background())
		if len(cameras) == 0 {
			fmt.Println("Warning: the registration service returned no cameras.")
		} else {
			fmt.Printf("Registration service knows %d cameras.\n", len(cameras))
		}

		path, err := config.WriteDefaults()
		if err != nil {
			log.Fatalf("Failed to save configuration file: %v", err)
		}
		fmt.Printf("Configuration saved to %s\n", path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := config.Load(); err != nil {
			fmt.Printf("Error: invalid configuration: %v\n", err)
			os.Exit(1)
		}

		settings := viper.AllSettings()
		if jsonOutput {
			printJSON(settings)
			return
		}

		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Printf("Config file: %s\n\n", used)
		}

		keys := viper.AllKeys()
		sort.Strings(keys)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "KEY\tVALUE")
		fmt.Fprintln(w, "---\t-----")
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%v\n", k, viper.Get(k))
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
