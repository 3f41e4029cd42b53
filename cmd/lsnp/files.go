package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opd-ai/lsnp"
	"github.com/opd-ai/lsnp/file"
)

var description string

var sendFileCmd = &cobra.Command{
	Use:   "send-file <user> <path>",
	Short: "Offer a file to a peer and stream its chunks",
	Args:  cobra.ExactArgs(2),
	RunE:  runSendFile,
}

var saveAvatarCmd = &cobra.Command{
	Use:   "save-avatar <user> <out>",
	Short: "Write a peer's cached avatar to a file",
	Args:  cobra.ExactArgs(2),
	RunE:  runSaveAvatar,
}

func init() {
	rootCmd.AddCommand(sendFileCmd, saveAvatarCmd)
	sendFileCmd.Flags().StringVarP(&description, "description", "d", "", "description shown with the offer")
}

func runSendFile(cmd *cobra.Command, args []string) error {
	return withNode(func(n *lsnp.Node) error {
		n.OnFileComplete(func(t *file.Transfer, _ string) {
			fmt.Printf("%s confirmed the transfer.\n", t.Peer)
		})
		n.OnFileFailed(func(t *file.Transfer, err error) {
			fmt.Printf("Transfer failed: %v\n", err)
		})
		fileID, err := n.SendFile(args[0], args[1], description)
		if err != nil {
			return err
		}
		fmt.Printf("Offered %s to %s (transfer %s)\n", filepath.Base(args[1]), args[0], fileID)
		return nil
	})
}

// runSaveAvatar reads straight from the cache; no presence beat, no linger.
func runSaveAvatar(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	n, err := lsnp.New(lsnp.FromConfig(cfg))
	if err != nil {
		return err
	}
	defer n.Stop()

	if err := n.SaveAvatar(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Avatar of %s saved.\n", args[0])
	return nil
}
