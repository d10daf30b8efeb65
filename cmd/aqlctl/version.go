package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dan-strohschein/aql-driver/client"
)

func registerVersionCmd(rootCmd *cobra.Command, v *viper.Viper) {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "prints the client and server versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			c, err := newClient(v)
			if err != nil {
				return err
			}
			defer c.Close()

			ver, err := c.Version(cmd.Context())
			if err != nil {
				return err
			}
			printHeader(out, "versions")
			printTable(out, []string{"COMPONENT", "NAME", "VERSION"}, [][]string{
				{"client", "aqlctl", client.Version},
				{"server", ver.Server, ver.Version + licenseSuffix(ver.License)},
			})
			return nil
		},
	})
}

func licenseSuffix(license string) string {
	if license == "" {
		return ""
	}
	return " (" + license + ")"
}
