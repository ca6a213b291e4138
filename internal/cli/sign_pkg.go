package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ralt/reposign/internal/config"
	"github.com/ralt/reposign/internal/models"
	"github.com/ralt/reposign/internal/rindex"
)

// NewSignPkgCmd creates the sign-pkg command
func NewSignPkgCmd() *cobra.Command {
	v := config.New()
	var force bool

	cmd := &cobra.Command{
		Use:   "sign-pkg <package>...",
		Short: "Sign package archives",
		Long: `Writes a detached RSA signature to <package>.sig for each package, in
order. Packages that already have a signature file are skipped unless
--force is given. Signing stops at the first failure.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v, config.KeyPrivateKey)
			if err != nil {
				return &models.RepoSignError{Type: models.ErrConfig, Err: err}
			}

			result, err := newSigner(cfg).SignPackages(&models.PackageSignConfig{
				Paths:          args,
				PrivateKeyPath: cfg.PrivateKey,
				Force:          force,
			})
			if result != nil {
				for _, f := range result.Files {
					if f.State == rindex.StateWritten {
						fmt.Fprintf(cmd.OutOrStdout(), "signed successfully %s\n", f.Path)
					}
				}
				logrus.Debugf("%d signed, %d skipped", result.Count(rindex.StateWritten), result.Count(rindex.StateSkipped))
			}
			return err
		},
	}

	cmd.Flags().String(config.KeyPrivateKey, "", "Path to the RSA private key (default ~/.ssh/id_rsa)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing signature files")

	return cmd
}
