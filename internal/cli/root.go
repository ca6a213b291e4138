package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ralt/reposign/internal/config"
	"github.com/ralt/reposign/internal/repository"
	"github.com/ralt/reposign/internal/rindex"
	"github.com/ralt/reposign/internal/signer"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reposign",
		Short: "Sign package repositories and package archives",
		Long: `Reposign manages the RSA signatures of a binary package repository.

It records the repository's public key and signer in the repository
index metadata, and writes a detached <package>.sig signature next to
each package archive.

The private key defaults to ~/.ssh/id_rsa. Encrypted keys are unlocked
with the passphrase in $XBPS_PASSPHRASE.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("config", "", "Config file (default $XDG_CONFIG_HOME/reposign/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(NewSignRepoCmd())
	rootCmd.AddCommand(NewSignPkgCmd())
	rootCmd.AddCommand(NewIndexCmd())

	return rootCmd
}

// loadConfig binds the command's flags into v and loads the merged configuration
func loadConfig(cmd *cobra.Command, v *viper.Viper, keys ...string) (*config.Config, error) {
	for _, key := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(key)); err != nil {
			return nil, err
		}
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Configuration: privkey=%q signedby=%q compression=%q arch=%q passphrase-set=%t",
		cfg.PrivateKey, cfg.SignedBy, cfg.Compression, cfg.Arch, cfg.Passphrase != "")
	return cfg, nil
}

// newSigner wires the repository store and key loader for cfg
func newSigner(cfg *config.Config) *rindex.Signer {
	keys := signer.NewLoader(signer.StaticPassphrase(cfg.Passphrase))
	return rindex.NewSigner(repository.NewFileStore(cfg.Arch), keys)
}
