package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/blobs"
)

var rootCmd = &cobra.Command{
	Use:   "blobs",
	Short: "Blob store CLI",
	Long:  "CLI for reading, writing and archiving site and deploy blob stores.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(viper.GetString("log_level"))
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/blobs/config.yaml)")
	flags.String("site-id", "", "site ID")
	flags.String("token", "", "access token")
	flags.String("api-url", "", "management API URL")
	flags.String("edge-url", "", "edge URL; when set, requests bypass the management API")
	flags.String("region", "", "storage region")
	flags.String("deploy", "", "use the store of this deploy instead of a named site store")
	flags.Int("concurrency", 8, "parallel transfers for import and export")
	flags.String("log-level", "warn", "log level")

	for key, flag := range map[string]string{
		"site_id":     "site-id",
		"token":       "token",
		"api_url":     "api-url",
		"edge_url":    "edge-url",
		"region":      "region",
		"deploy_id":   "deploy",
		"concurrency": "concurrency",
		"log_level":   "log-level",
	} {
		viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BLOBS")
	viper.AutomaticEnv()

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "blobs")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "blobs")
	}
	return ".blobs"
}

// storeOptions maps configuration onto store options. Unset values fall back
// to the environment context.
func storeOptions() []blobs.StoreOption {
	opts := []blobs.StoreOption{blobs.WithLogger(logrus.StandardLogger())}
	for _, o := range []struct {
		key  string
		with func(string) blobs.StoreOption
	}{
		{"site_id", blobs.WithSiteID},
		{"token", blobs.WithToken},
		{"api_url", blobs.WithAPIURL},
		{"edge_url", blobs.WithEdgeURL},
		{"region", blobs.WithRegion},
	} {
		if v := viper.GetString(o.key); v != "" {
			opts = append(opts, o.with(v))
		}
	}
	return opts
}

// openStore returns the named site store, or the deploy store when --deploy
// is set. With --deploy, "-" names the deploy's default store.
func openStore(name string) (*blobs.Store, error) {
	if name == "-" {
		name = ""
	}
	opts := storeOptions()
	if deployID := viper.GetString("deploy_id"); deployID != "" {
		if name != "" {
			opts = append(opts, blobs.WithStoreName(name))
		}
		return blobs.GetDeployStore(append(opts, blobs.WithDeployID(deployID))...)
	}
	if name == "" {
		return nil, fmt.Errorf("store name is required without --deploy")
	}
	return blobs.GetStore(name, opts...)
}

func concurrency() int {
	if n := viper.GetInt("concurrency"); n > 0 {
		return n
	}
	return 1
}
