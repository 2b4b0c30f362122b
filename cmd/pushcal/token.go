package main

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"pushcal/internal/model"
	"pushcal/internal/token"
)

func newTokenCmd(flags *rootFlags) *cobra.Command {
	var (
		user    string
		ttl     time.Duration
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a calendar subscription token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user == "" {
				return errors.New("--user is required")
			}
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			raw, err := token.Mint(conf.Calendar.TokenSecret, model.SubjectID(user), ttl)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, raw)
			if baseURL != "" {
				fmt.Fprintf(out, "%s/ical/subscribe?token=%s\n", baseURL, url.QueryEscape(raw))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Subject (user id) the token grants")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime; 0 never expires")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Also print the subscribe URL under this base")
	return cmd
}
