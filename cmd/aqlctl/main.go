// Command aqlctl runs statements, collection scans and exports against a
// query server and streams the rows as JSON lines.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dan-strohschein/aql-driver/client"
)

const envPrefix = "AQLCTL"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		printError(client.FormatError(err, false))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "aqlctl",
		Short:         "query, scan and export collections",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(v, cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "optional config file (yaml, json or toml)")
	flags.String("endpoint", "http://127.0.0.1:8529", "server URL; TLS options may be appended as query parameters")
	flags.String("database", "", "database name; empty selects the server default")
	flags.String("username", "", "basic auth user")
	flags.String("password", "", "basic auth password")
	flags.String("token", "", "bearer token")
	flags.Duration("timeout", 30*time.Second, "per-request timeout")
	flags.String("log-level", "ERROR", "client log level (DEBUG, INFO, WARN, ERROR)")
	flags.Bool("debug", false, "log raw requests and responses")

	registerQueryCmd(rootCmd, v)
	registerAllCmd(rootCmd, v)
	registerExportCmd(rootCmd, v)
	registerVersionCmd(rootCmd, v)
	return rootCmd
}

// loadConfig layers flags over AQLCTL_* environment variables over the
// optional config file.
func loadConfig(v *viper.Viper, cmd *cobra.Command) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}
	return nil
}

// newClient builds a client from the resolved configuration.
func newClient(v *viper.Viper) (*client.Client, error) {
	opts := client.DefaultOptions()
	opts.Endpoint = v.GetString("endpoint")
	opts.Database = v.GetString("database")
	opts.Username = v.GetString("username")
	opts.Password = v.GetString("password")
	opts.Token = v.GetString("token")
	opts.DefaultTimeoutMs = int(v.GetDuration("timeout").Milliseconds())
	opts.LogLevel = v.GetString("log-level")
	opts.DebugMode = v.GetBool("debug")
	opts.ServerSideBinding = v.GetBool("server-side")
	opts.Logger = client.NewLogger(opts.LogLevel, os.Stderr)
	return client.NewClient(&opts)
}
