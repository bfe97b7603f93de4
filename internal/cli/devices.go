package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MishthiJain8/joinright/internal/adapters/capture"
)

func NewDevicesCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available cameras, microphones and screens",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := capture.NewManager()
			if err != nil {
				return err
			}
			infos := manager.Devices()
			if len(infos) == 0 {
				fmt.Println("no capture devices found")
				return nil
			}
			for _, info := range infos {
				fmt.Printf("%-12s %-20s %s\n", info.Kind, info.Label, info.DeviceID)
			}
			return nil
		},
	}
}
