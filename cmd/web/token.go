package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yanizio/adept-pluginhost/internal/auth"
	"github.com/yanizio/adept-pluginhost/internal/config"
	"github.com/yanizio/adept-pluginhost/internal/vault"
)

var (
	tokSub   int64
	tokEmail string
	tokRole  string
	tokSite  int64
)

// token:issue signs with the configured key and never touches the database.
var tokenCmd = &cobra.Command{
	Use:   "token:issue",
	Short: "Sign a development credential",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		tenant, err := siteFlag(cmd, tokSite)
		if err != nil {
			return err
		}
		role, err := auth.ParseRole(tokRole)
		if err != nil {
			return err
		}

		var secrets config.SecretSource
		if config.HasSecretRefs() {
			vc, err := vault.New(ctx, zap.S())
			if err != nil {
				return err
			}
			secrets = vc
		}
		cfg, err := config.Load(ctx, secrets)
		if err != nil {
			return err
		}

		res, err := auth.NewResolver([]byte(cfg.Auth.SigningKey), auth.WithIssuer(cfg.Auth.Issuer))
		if err != nil {
			return err
		}
		tok, err := res.Issue(auth.NewPrincipal(tokSub, tokEmail, role, tenant), cfg.Auth.TokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Int64Var(&tokSub, "sub", 0, "subject (user) id")
	tokenCmd.Flags().StringVar(&tokEmail, "email", "", "subject email")
	tokenCmd.Flags().StringVar(&tokRole, "role", string(auth.RoleAdmin), "role")
	tokenCmd.Flags().Int64Var(&tokSite, "site", 0, "pin the credential to a tenant id; omit for a global credential")
	_ = tokenCmd.MarkFlagRequired("sub")
	rootCmd.AddCommand(tokenCmd)
}
