package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/larsks/vmbuild/internal/builder"
	"github.com/larsks/vmbuild/internal/config"
	"github.com/larsks/vmbuild/internal/version"
)

func newBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [flags] [destdir]",
		Short: "Build the disk images",
		Example: `  vmbuild build /srv/images
  vmbuild build --profile boot --rootsize 8G --format vmdk /srv/images
  vmbuild build --layout-file layout.yaml --firstboot ./setup.sh /srv/images
  vmbuild build --raw existing.img --format qcow2 /srv/images`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				cfg.Destdir = args[0]
			}

			if err := requireRoot(); err != nil {
				return err
			}

			b, err := builder.New(cfg, builder.WithLogger(logrus.WithField("component", "builder")))
			if err != nil {
				return err
			}

			images, err := b.Build(cmd.Context())
			if err != nil {
				return err
			}

			for _, image := range images {
				fmt.Fprintln(cmd.OutOrStdout(), image)
			}

			return nil
		},
	}

	addLayoutFlags(cmd.Flags())
	addBuildFlags(cmd.Flags())

	return cmd
}

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [flags]",
		Short: "Show the disk layout, device names and fstab without building anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			b, err := builder.New(cfg)
			if err != nil {
				return err
			}

			return b.Plan(cmd.OutOrStdout())
		},
	}

	addLayoutFlags(cmd.Flags())

	return cmd
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [flags]",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			return config.Dump(cfg, cmd.OutOrStdout())
		},
	}

	addLayoutFlags(cmd.Flags())
	addBuildFlags(cmd.Flags())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get(os.Args[0]))
		},
	}
}
