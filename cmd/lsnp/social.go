package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opd-ai/lsnp"
)

var unlike bool

var postCmd = &cobra.Command{
	Use:   "post <content>",
	Short: "Broadcast a post to everyone on the network",
	Args:  cobra.ExactArgs(1),
	RunE:  runPost,
}

var dmCmd = &cobra.Command{
	Use:   "dm <user> <content>",
	Short: "Send a direct message to one peer",
	Args:  cobra.ExactArgs(2),
	RunE:  runDM,
}

var followCmd = &cobra.Command{
	Use:   "follow <user>",
	Short: "Follow a peer, admitting their posts to your feed",
	Args:  cobra.ExactArgs(1),
	RunE:  runFollow,
}

var unfollowCmd = &cobra.Command{
	Use:   "unfollow <user>",
	Short: "Stop following a peer",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnfollow,
}

var likeCmd = &cobra.Command{
	Use:   "like <user> <post-timestamp>",
	Short: "Like a peer's post, identified by its unix timestamp",
	Args:  cobra.ExactArgs(2),
	RunE:  runLike,
}

func init() {
	rootCmd.AddCommand(postCmd, dmCmd, followCmd, unfollowCmd, likeCmd)
	likeCmd.Flags().BoolVar(&unlike, "unlike", false, "withdraw the like instead")
}

func runPost(cmd *cobra.Command, args []string) error {
	return withNode(func(n *lsnp.Node) error {
		post, err := n.SendPost(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Posted at timestamp %d (message %s)\n", post.Timestamp, post.MessageID)
		return nil
	})
}

func runDM(cmd *cobra.Command, args []string) error {
	return withNode(func(n *lsnp.Node) error {
		n.OnAck(func(_, status string) {
			fmt.Printf("Delivered (%s).\n", status)
		})
		dm, err := n.SendDM(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Sent message %s to %s\n", dm.MessageID, dm.To)
		return nil
	})
}

func runFollow(cmd *cobra.Command, args []string) error {
	return withNode(func(n *lsnp.Node) error {
		if err := n.Follow(args[0]); err != nil {
			return err
		}
		fmt.Printf("Following %s\n", args[0])
		return nil
	})
}

func runUnfollow(cmd *cobra.Command, args []string) error {
	return withNode(func(n *lsnp.Node) error {
		if err := n.Unfollow(args[0]); err != nil {
			return err
		}
		fmt.Printf("Unfollowed %s\n", args[0])
		return nil
	})
}

func runLike(cmd *cobra.Command, args []string) error {
	ts, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("post timestamp %q is not a unix time", args[1])
	}
	return withNode(func(n *lsnp.Node) error {
		if unlike {
			if err := n.Unlike(args[0], ts); err != nil {
				return err
			}
			fmt.Println("Unliked.")
			return nil
		}
		if err := n.Like(args[0], ts); err != nil {
			return err
		}
		fmt.Println("Liked.")
		return nil
	})
}
