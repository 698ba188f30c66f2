package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	memberStore "buff/internal/adapters/storage/member"
)

// NewMembersCmd creates the members subcommand group.
func NewMembersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Inspect member records",
	}
	cmd.AddCommand(newMembersListCmd())
	return cmd
}

func newMembersListCmd() *cobra.Command {
	var filter memberStore.ListFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List members ordered by sign-up time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			be, err := openBackend(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer be.close()

			members, err := be.members.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tPROVIDER\tMEMBERSHIP\tCREATED")
			for _, m := range members {
				provider := m.Credential.Provider
				if provider == "" {
					provider = "password"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					m.ID, m.Email, m.DisplayName(""), provider, m.Membership.Status, m.CreatedAt.Format(time.DateOnly))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&filter.Limit, "limit", memberStore.DefaultListLimit, "maximum rows")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "rows to skip")
	cmd.Flags().StringVar(&filter.Provider, "provider", "", "only members linked to this provider")
	return cmd
}
