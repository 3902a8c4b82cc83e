package main

import (
	"fmt"

	"github.com/example/storefront/pkg/discovery"
	"github.com/spf13/cobra"
)

func instancesCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "instances",
		Short: "List API instances registered in etcd",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if len(cfg.Etcd.Endpoints) == 0 {
				return fmt.Errorf("etcd.endpoints is empty")
			}
			if name == "" {
				name = cfg.Server.Name
			}

			registry, err := discovery.NewRegistry(&cfg.Etcd, logger)
			if err != nil {
				return err
			}
			defer registry.Close()

			instances, err := registry.Instances(cmd.Context(), name)
			if err != nil {
				return err
			}
			for _, in := range instances {
				fmt.Fprintln(cmd.OutOrStdout(), in.Addr())
			}
			if len(instances) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No %s instances registered\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "service name (default server.name)")
	return cmd
}
