package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"argus-master/internal/config"
)

var cfgFile string
var jsonOutput bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "argus-master",
	Short: "Control console for a fleet of networked stereo cameras",
	Long: `Discover stereo camera units from the registration service, then
activate, capture and deactivate them one at a time or across the whole fleet.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() { config.InitConfig(cfgFile) })

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.argus-master.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	// Flags that override config keys
	rootCmd.PersistentFlags().String("registry", "", "Registration service URL (default http://localhost:8082/registration)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log every request and reply")
	rootCmd.PersistentFlags().String("image-dir", "", "Directory captured images are stored under (default camimages)")
	bindFlag("registry_url", rootCmd.PersistentFlags().Lookup("registry"))
	bindFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	bindFlag("image_dir", rootCmd.PersistentFlags().Lookup("image-dir"))
}

func bindFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
