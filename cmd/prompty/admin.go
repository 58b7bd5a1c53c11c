package main

import (
	"fmt"
	"os"

	"github.com/kaenova/prompty/internal/models"
	"github.com/spf13/cobra"
)

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative tasks against the configured store",
	}

	var name, email, password string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the first admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("PROMPTY_ADMIN_PASSWORD")
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.services.Users.InitializeAdmin(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	initCmd.Flags().StringVar(&name, "name", "Admin", "Display name")
	initCmd.Flags().StringVar(&email, "email", "", "Login email")
	initCmd.Flags().StringVar(&password, "password", "", "Password (or PROMPTY_ADMIN_PASSWORD)")
	_ = initCmd.MarkFlagRequired("email")

	var inviteName, inviteRole, issuer string
	inviteCmd := &cobra.Command{
		Use:   "invite",
		Short: "Issue an invite token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			admin, err := a.services.Users.GetByEmail(cmd.Context(), issuer)
			if err != nil {
				return fmt.Errorf("issuing admin %q: %w", issuer, err)
			}
			invite, err := a.services.Invites.Create(cmd.Context(), inviteName, models.Role(inviteRole), admin.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invite for %s (%s), expires %s\ntoken: %s\n",
				invite.Name, invite.Role, invite.ExpiresAt.Format("2006-01-02 15:04 MST"), invite.Token)
			return nil
		},
	}
	inviteCmd.Flags().StringVar(&inviteName, "name", "", "Invitee display name")
	inviteCmd.Flags().StringVar(&inviteRole, "role", string(models.RoleUser), "Role granted on acceptance (admin or user)")
	inviteCmd.Flags().StringVar(&issuer, "as", "", "Email of the admin issuing the invite")
	_ = inviteCmd.MarkFlagRequired("name")
	_ = inviteCmd.MarkFlagRequired("as")

	cmd.AddCommand(initCmd, inviteCmd)
	return cmd
}
