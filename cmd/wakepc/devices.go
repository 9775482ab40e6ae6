package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/triolabs/wakepc/internal/audio"
	"github.com/triolabs/wakepc/internal/logging"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices",
	Long:  "Lists capture devices usable as audio.input_device in the settings file.",
	Run: func(cmd *cobra.Command, args []string) {
		logging.Disable()
		devices := audio.ListDevices()
		if len(devices) == 0 {
			fmt.Println("No enumerable devices; the platform default will be used.")
			return
		}
		for _, d := range devices {
			fmt.Printf("%3d  %s\n", d.Index, d.Name)
		}
	},
}
