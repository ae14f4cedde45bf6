package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fentz26/pageforge/internal/invites"
	"github.com/fentz26/pageforge/internal/models"
	"github.com/spf13/cobra"
)

var inviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Invite profiles to created pages",
}

var inviteSendCmd = &cobra.Command{
	Use:   "send [page-id] [profile-url]",
	Short: "Invite a profile to a page",
	Args:  cobra.ExactArgs(2),
	RunE:  runInviteSend,
}

var inviteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invites",
	RunE:  runInviteList,
}

var inviteAcceptCmd = &cobra.Command{
	Use:   "accept [invite-id]",
	Short: "Mark an invite accepted",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return resolveInvite(args[0], "accept") },
}

var inviteDeclineCmd = &cobra.Command{
	Use:   "decline [invite-id]",
	Short: "Mark an invite declined",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return resolveInvite(args[0], "decline") },
}

var (
	inviteRole   string
	inviteBy     string
	invitePageID string
)

func init() {
	inviteCmd.AddCommand(inviteSendCmd, inviteListCmd, inviteAcceptCmd, inviteDeclineCmd)

	inviteSendCmd.Flags().StringVar(&inviteRole, "role", "", "Role to grant ("+joinRoles()+"); daemon default when empty")
	inviteSendCmd.Flags().StringVar(&inviteBy, "by", "", "Profile of the inviter")

	inviteListCmd.Flags().StringVar(&invitePageID, "page", "", "Only list invites for this page")
}

func runInviteSend(cmd *cobra.Command, args []string) error {
	req := invites.SendRequest{
		Invitee:   args[1],
		Role:      models.Role(inviteRole),
		InvitedBy: inviteBy,
	}
	var res invites.SendResult
	if err := apiPost("/pages/"+args[0]+"/invites", req, &res); err != nil {
		return err
	}
	if !res.Success || res.Invite == nil {
		return fmt.Errorf("invite failed: %s", res.Error)
	}
	fmt.Printf("Invited %s as %s: %s\n", res.Invite.Invitee, res.Invite.Role, res.Invite.ID)
	if res.Invite.InviteLink != "" {
		fmt.Printf("Link: %s\n", res.Invite.InviteLink)
	}
	return nil
}

func runInviteList(cmd *cobra.Command, args []string) error {
	path := "/invites"
	if invitePageID != "" {
		path = "/pages/" + invitePageID + "/invites"
	}
	var list []models.Invite
	if err := apiGet(path, &list); err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No invites found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPAGE\tINVITEE\tROLE\tSTATUS")
	for _, inv := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", truncateID(inv.ID), truncate(inv.PageName, 32), truncate(inv.Invitee, 40), inv.Role, inv.Status)
	}
	return w.Flush()
}

func resolveInvite(id, action string) error {
	var inv models.Invite
	if err := apiPost("/invites/"+id+"/"+action, nil, &inv); err != nil {
		return err
	}
	fmt.Printf("Invite %s is now %s\n", id, inv.Status)
	return nil
}
