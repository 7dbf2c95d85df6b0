package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	thousandsCmd.AddCommand(thousandsSetCmd)
	thousandsCmd.AddCommand(thousandsListCmd)
	rootCmd.AddCommand(thousandsCmd)
}

var thousandsCmd = &cobra.Command{
	Use:   "thousands",
	Short: "Manage the thousands register of the meter",
	Long: `The dials only show litres below a thousand. The thousands register
is read by hand and stored with the date it was read on; readings from that
date on use the stored value.`,
}

var thousandsSetCmd = &cobra.Command{
	Use:   "set <YYYY-MM-DD> <value>",
	Short: "Store the thousands register value for a date",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid thousands value %q: %w", args[1], err)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := newOutput(cmd)
		if err != nil {
			return err
		}
		database, err := openDB(cfg, true)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := database.SetThousands(args[0], value); err != nil {
			return err
		}
		out.Success(fmt.Sprintf("thousands from %s: %d", args[0], value))
		return nil
	},
}

var thousandsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the stored thousands register values",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := newOutput(cmd)
		if err != nil {
			return err
		}
		database, err := openDB(cfg, false)
		if err != nil {
			return err
		}
		defer database.Close()

		entries, err := database.ListThousands()
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{e.ISODate, strconv.Itoa(e.Value)})
		}
		return out.Table([]string{"date", "thousands"}, rows)
	},
}
