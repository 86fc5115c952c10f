package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/teesched/internal/secrets"
)

func newKeysCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Generate sealing keys (and optionally an operator token hash)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(os.Stdout, "export TEESCHED_SECURITY_HASH_KEY=%s\n", secrets.GenerateKey())
			fmt.Fprintf(os.Stdout, "export TEESCHED_SECURITY_BLOCK_KEY=%s\n", secrets.GenerateKey())
			if token != "" {
				hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "export TEESCHED_SECURITY_TOKEN_HASH=%s\n", string(hash))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "operator token to hash for security.token_hash")
	return cmd
}
