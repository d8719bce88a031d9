package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a source or group and all its indexed documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		name := args[0]

		isGroup, err := store.IsGroup(cmd.Context(), name)
		if err != nil {
			return err
		}

		var removed bool
		if isGroup {
			removed, err = store.RemoveGroup(cmd.Context(), name)
		} else {
			removed, err = store.RemoveSource(cmd.Context(), name)
		}
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("no source or group named %q", name)
		}

		if isGroup {
			fmt.Printf("Removed group %q\n", name)
		} else {
			fmt.Printf("Removed source %q\n", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
}
