package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/triolabs/wakepc/internal/config"
	"github.com/triolabs/wakepc/internal/journal"
	"github.com/triolabs/wakepc/internal/logging"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent request cycles from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Disable()

		cfg, err := config.Load(settingsPath)
		if err != nil {
			return err
		}
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()

		cycles, err := j.Recent(historyLimit)
		if err != nil {
			return err
		}
		if len(cycles) == 0 {
			fmt.Println("No cycles recorded yet.")
			return nil
		}
		for _, c := range cycles {
			outcome := "ok"
			if c.FailStage != "" {
				outcome = "failed:" + c.FailStage
			}
			fmt.Printf("%s  [%s/%s] %s  %q -> %q\n",
				c.CreatedAt.Format("2006-01-02 15:04:05"),
				c.WakeWord, c.Persona, outcome, c.Transcript, c.Reply)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of cycles to show")
}
