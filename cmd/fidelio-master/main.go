// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fidelio-master: %v\n", err)
		os.Exit(1)
	}
}

var configPath string

func buildCLI() *cobra.Command {
	root := &cobra.Command{
		Use:   "fidelio-master",
		Short: "Fidelio Master: provisions and launches Fidelio containers",
		Long: `Fidelio Master reads a container descriptor schema, validates its
dependency graph, publishes configuration nodes to the coordination
store, and drives container lifecycle through the configured runtime.`,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the master config file (defaults to FIDELIO_CONFIG)")

	root.AddCommand(buildStartCommand())
	root.AddCommand(buildStopCommand())
	root.AddCommand(buildRestartCommand())
	root.AddCommand(buildStatusCommand())

	return root
}

func buildStartCommand() *cobra.Command {
	var serviceName string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Provision and launch containers from the configured schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServices(cmd.Context(), serviceName)
		},
	}
	cmd.Flags().StringVar(&serviceName, "service", "", "restrict to a single service name (default: all in schema)")
	return cmd
}

func buildStopCommand() *cobra.Command {
	var serviceName string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop and remove a running container",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serviceName == "" {
				return fmt.Errorf("--service is required")
			}
			return stopService(cmd.Context(), serviceName)
		},
	}
	cmd.Flags().StringVar(&serviceName, "service", "", "service to stop")
	cmd.MarkFlagRequired("service")
	return cmd
}

func buildRestartCommand() *cobra.Command {
	var serviceName string
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop then relaunch a service's container",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serviceName == "" {
				return fmt.Errorf("--service is required")
			}
			return restartService(cmd.Context(), serviceName)
		},
	}
	cmd.Flags().StringVar(&serviceName, "service", "", "service to restart")
	cmd.MarkFlagRequired("service")
	return cmd
}

func buildStatusCommand() *cobra.Command {
	var serviceName string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report the naming-node status last published by a service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serviceName == "" {
				return fmt.Errorf("--service is required")
			}
			return showStatus(cmd.Context(), serviceName)
		},
	}
	cmd.Flags().StringVar(&serviceName, "service", "", "service to inspect")
	cmd.MarkFlagRequired("service")
	return cmd
}
