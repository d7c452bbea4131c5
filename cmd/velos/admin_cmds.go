package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dave93/velos/internal/rpc"
)

func newSaveCmd(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Persist the process table to disk now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(global, func(c *rpc.Client) error {
				if err := c.Save(); err != nil {
					return err
				}
				return printOK(global, "saved", "state")
			})
		},
	}
}

func newResurrectCmd(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resurrect",
		Short: "Respawn processes restored from the last saved state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(global, func(c *rpc.Client) error {
				n, err := c.Resurrect()
				if err != nil {
					return err
				}
				if global.JSON {
					return printJSON(map[string]any{"resurrected": n})
				}
				fmt.Printf("resurrected %d process(es)\n", n)
				return nil
			})
		},
	}
}

func newPingCmd(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the daemon is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(global, func(c *rpc.Client) error {
				if err := c.Ping(); err != nil {
					return err
				}
				if global.JSON {
					return printJSON(map[string]any{"pong": true})
				}
				fmt.Println("pong")
				return nil
			})
		},
	}
}

func newShutdownCmd(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Stop all processes and shut the daemon down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(global, func(c *rpc.Client) error {
				if err := c.Shutdown(); err != nil {
					return err
				}
				return printOK(global, "shutdown", "requested")
			})
		},
	}
}
