package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opd-ai/lsnp"
)

var (
	groupID       string
	addMembers    []string
	removeMembers []string
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Create, update, and message groups",
}

var groupCreateCmd = &cobra.Command{
	Use:   "create <name> [member ...]",
	Short: "Create a group and broadcast it to the network",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGroupCreate,
}

var groupUpdateCmd = &cobra.Command{
	Use:   "update <group-id>",
	Short: "Add or remove members of a group you created",
	Args:  cobra.ExactArgs(1),
	RunE:  runGroupUpdate,
}

var groupSendCmd = &cobra.Command{
	Use:   "send <group-id> <content>",
	Short: "Send a message to a group you belong to",
	Args:  cobra.ExactArgs(2),
	RunE:  runGroupSend,
}

func init() {
	rootCmd.AddCommand(groupCmd)
	groupCmd.AddCommand(groupCreateCmd, groupUpdateCmd, groupSendCmd)

	groupCreateCmd.Flags().StringVar(&groupID, "id", "", "group id (default a generated one)")
	groupUpdateCmd.Flags().StringSliceVar(&addMembers, "add", nil, "members to add, comma separated")
	groupUpdateCmd.Flags().StringSliceVar(&removeMembers, "remove", nil, "members to remove, comma separated")
}

func runGroupCreate(cmd *cobra.Command, args []string) error {
	return withNode(func(n *lsnp.Node) error {
		g, err := n.CreateGroup(groupID, args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Printf("Created group %s (%q): %s\n", g.ID, g.Name, strings.Join(g.Members, ", "))
		return nil
	})
}

func runGroupUpdate(cmd *cobra.Command, args []string) error {
	if len(addMembers) == 0 && len(removeMembers) == 0 {
		return fmt.Errorf("nothing to change; pass --add or --remove")
	}
	return withNode(func(n *lsnp.Node) error {
		g, err := n.UpdateGroup(args[0], addMembers, removeMembers)
		if err != nil {
			return err
		}
		fmt.Printf("Group %s members: %s\n", g.ID, strings.Join(g.Members, ", "))
		return nil
	})
}

func runGroupSend(cmd *cobra.Command, args []string) error {
	return withNode(func(n *lsnp.Node) error {
		if err := n.SendGroupMessage(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Sent to group %s\n", args[0])
		return nil
	})
}
