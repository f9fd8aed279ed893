package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the model response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all cached model responses",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		a.cfg.Cache.Enabled = true
		c, err := a.cache()
		if err != nil {
			return runtimeErr(fmt.Errorf("opening cache: %w", err))
		}
		n, err := c.Clear()
		if err != nil {
			return runtimeErr(fmt.Errorf("clearing cache: %w", err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared (%d entries removed).\n", n)
		return nil
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.cache()
		if err != nil {
			return runtimeErr(fmt.Errorf("opening cache: %w", err))
		}
		if !c.Enabled() {
			fmt.Fprintln(cmd.OutOrStdout(), "Cache is disabled.")
			return nil
		}
		stats, err := c.GetStats()
		if err != nil {
			return runtimeErr(fmt.Errorf("reading cache stats: %w", err))
		}
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return runtimeErr(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheShowCmd)
}
