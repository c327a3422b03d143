package main

import (
	"fmt"

	"archive-view-go/internal/config"
	"archive-view-go/internal/model"
	"archive-view-go/pkg/log"

	"github.com/spf13/cobra"
)

// cliOptions 是所有子命令共享的参数。
type cliOptions struct {
	configPath string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}
	rootCmd := &cobra.Command{
		Use:          "eadtree",
		Short:        "EAD archive tree viewer",
		Long:         `Parse EAD finding aids and print their archive hierarchy.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				log.Init("debug", "console", "")
			}
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config.yaml with metadata field templates")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(renderCommand(opts), listCommand(opts))
	return rootCmd
}

// archivesConfig 读取配置文件中的 archives 段；未指定配置文件时使用内置字段模板。
func (o *cliOptions) archivesConfig() (config.ArchivesConfig, error) {
	if o.configPath == "" {
		return config.ArchivesConfig{CollapseLevel: 1, MetadataFields: config.DefaultMetadataFields}, nil
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.ArchivesConfig{}, err
	}
	return cfg.Archives, nil
}

func (o *cliOptions) templates() ([]model.ArchiveMetadataField, config.ArchivesConfig, error) {
	archives, err := o.archivesConfig()
	if err != nil {
		return nil, archives, err
	}
	templates, err := archives.FieldTemplates()
	if err != nil {
		return nil, archives, fmt.Errorf("invalid metadata field templates: %w", err)
	}
	return templates, archives, nil
}
