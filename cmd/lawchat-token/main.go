// Package main 提供 lawchat-token 命令：使用服务配置中的 jwt.secret 签发 access token。
// 服务本身只校验 token，账号体系在外部，运维与联调时用这个命令签发 token。
package main

import (
	"errors"
	"fmt"
	"io"
	"lawchat-go/internal/config"
	"lawchat-go/pkg/token"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "lawchat-token",
		Short:         "Issue access tokens for the lawchat service",
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./configs/config.yaml", "path to the service config file")
	root.AddCommand(newIssueCmd(out, &configPath))
	return root
}

func newIssueCmd(out io.Writer, configPath *string) *cobra.Command {
	var (
		userID   uint
		username string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Print a signed token for a user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.JWT.Secret == "" {
				return errors.New("jwt.secret is not configured")
			}
			if userID == 0 {
				return errors.New("--user-id is required")
			}
			if ttl <= 0 {
				ttl = cfg.JWT.TokenTTL
			}
			signed, err := token.NewJWTManager(cfg.JWT.Secret, ttl).GenerateToken(userID, username)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			_, err = fmt.Fprintln(out, signed)
			return err
		},
	}
	cmd.Flags().UintVar(&userID, "user-id", 0, "user id carried in the token (subject user:<id>)")
	cmd.Flags().StringVar(&username, "username", "", "username carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, defaults to jwt.token_ttl")
	return cmd
}
