package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ralt/reposign/internal/config"
	"github.com/ralt/reposign/internal/models"
)

// NewSignRepoCmd creates the sign-repo command
func NewSignRepoCmd() *cobra.Command {
	v := config.New()

	cmd := &cobra.Command{
		Use:   "sign-repo <repodir>",
		Short: "Initialize or update the signing metadata of a repository",
		Long: `Records the public key, key size and signer identity in the repository
index metadata. The index is only rewritten, under the repository lock,
when the recorded values differ from the active key and signer.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v, config.KeyPrivateKey, config.KeySignedBy, config.KeyCompression, config.KeyArch)
			if err != nil {
				return &models.RepoSignError{Type: models.ErrConfig, Err: err}
			}

			logrus.Infof("Signing repository %s", args[0])
			result, err := newSigner(cfg).SignRepository(&models.RepoSignConfig{
				RepoDir:        args[0],
				PrivateKeyPath: cfg.PrivateKey,
				SignedBy:       cfg.SignedBy,
				Compression:    cfg.Compression,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringP(config.KeySignedBy, "s", "", "Signer identity recorded in the repository (required)")
	cmd.Flags().String(config.KeyPrivateKey, "", "Path to the RSA private key (default ~/.ssh/id_rsa)")
	cmd.Flags().String(config.KeyCompression, "", "Repodata compression: none, gzip, xz, zstd (default zstd)")
	cmd.Flags().String(config.KeyArch, "", "Repository architecture (default host architecture)")

	return cmd
}
