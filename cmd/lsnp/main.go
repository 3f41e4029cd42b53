// Command lsnp runs a Local Social Networking Protocol peer: posts,
// direct messages, file transfers, groups, and tic-tac-toe over UDP
// broadcast, with no server anywhere.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/lsnp"
	"github.com/opd-ai/lsnp/config"
)

var (
	cfgFile    string
	flagUser   string
	flagName   string
	flagStatus string
	flagPort   int
	verbose    bool
	linger     time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "lsnp",
	Short: "Local Social Networking Protocol peer",
	Long: `lsnp is a serverless social network for one LAN: peers announce
themselves over UDP broadcast and exchange posts, direct messages, files,
groups, and tic-tac-toe games. Run a long-lived node with "lsnp run", or
fire single actions with the other subcommands.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default lsnp.yaml, searched in . and the user config dir)")
	pf.StringVarP(&flagUser, "user", "u", "", "identity on the wire as name@ip (default hostname@local-ip)")
	pf.StringVar(&flagName, "name", "", "display name sent with the profile")
	pf.StringVar(&flagStatus, "status", "", "status line sent with the profile")
	pf.IntVarP(&flagPort, "port", "p", 0, "UDP port shared by the broadcast domain (default 50999)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pf.DurationVar(&linger, "wait", 2*time.Second, "how long one-shot commands linger for replies")
}

// loadConfig merges the config file, the environment, and the command
// line, the command line winning.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if flagUser != "" {
		cfg.UserID = flagUser
	}
	if flagName != "" {
		cfg.DisplayName = flagName
	}
	if flagStatus != "" {
		cfg.Status = flagStatus
	}
	if flagPort != 0 {
		cfg.Port = flagPort
	}
	return cfg, nil
}

// withNode runs one action against a fresh node. act registers callbacks
// and sends messages; afterwards the node beats its presence once and
// lingers for replies before shutting down.
func withNode(act func(n *lsnp.Node) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	n, err := lsnp.New(lsnp.FromConfig(cfg))
	if err != nil {
		return err
	}
	defer n.Stop()

	if err := act(n); err != nil {
		return err
	}
	if err := n.Start(); err != nil {
		return err
	}
	time.Sleep(linger)
	return nil
}

func timeOf(ts int64) string {
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}
