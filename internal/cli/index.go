package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ralt/reposign/internal/config"
	"github.com/ralt/reposign/internal/models"
	"github.com/ralt/reposign/internal/repository"
	"github.com/ralt/reposign/internal/rindex"
)

// NewIndexCmd creates the index command
func NewIndexCmd() *cobra.Command {
	v := config.New()

	cmd := &cobra.Command{
		Use:   "index <repodir>",
		Short: "Register the package archives of a repository directory",
		Long: `Scans <repodir> for .xbps archives of the repository architecture (or
noarch) and records them in the repository index. Existing signing
metadata is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v, config.KeyCompression, config.KeyArch)
			if err != nil {
				return &models.RepoSignError{Type: models.ErrConfig, Err: err}
			}

			ix := rindex.NewIndexer(repository.NewFileStore(cfg.Arch), nil)
			result, err := ix.Index(cmd.Context(), &models.IndexConfig{
				RepoDir:     args[0],
				Compression: cfg.Compression,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().String(config.KeyCompression, "", "Repodata compression: none, gzip, xz, zstd (default zstd)")
	cmd.Flags().String(config.KeyArch, "", "Repository architecture (default host architecture)")

	return cmd
}
