// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

// Config holds the CLI configuration loaded from config.yaml.
type Config struct {
	// ServerURL is the base URL of the graphgate server.
	ServerURL string `yaml:"server_url"`
}

// DefaultCLIConfig targets a gateway on the local machine.
func DefaultCLIConfig() Config {
	return Config{
		ServerURL: "http://localhost:8086",
	}
}

var (
	serverURL string

	rootCmd = &cobra.Command{
		Use:   "graphctl",
		Short: "A CLI to manage the Aleutian Graph gateway",
		Long: `Graphctl administers a running graphgate server: capability
detection, tenant lifecycle, schema pushes, and destructive data
operations with explicit confirmation.`,
	}

	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check gateway liveness and the backing-store connection state",
		Run:   runHealth,
	}

	refreshCapabilities bool

	capabilitiesCmd = &cobra.Command{
		Use:   "capabilities",
		Short: "Show the detected deployment capabilities",
		Long:  `Shows the cached capability snapshot: enterprise features, namespace support, and license state. Use --refresh to force a re-probe.`,
		Run:   runCapabilities,
	}

	// Tenant lifecycle commands
	tenantCmd = &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants and their namespaces",
	}
	listTenantsCmd = &cobra.Command{
		Use:   "list",
		Short: "List all known tenants",
		Run:   runListTenants,
	}
	createTenantCmd = &cobra.Command{
		Use:   "create [tenant_id]",
		Short: "Create a tenant and allocate its namespace",
		Args:  cobra.ExactArgs(1),
		Run:   runCreateTenant,
	}
	forceDelete bool

	deleteTenantCmd = &cobra.Command{
		Use:   "delete [tenant_id]",
		Short: "Delete a tenant and wipe its namespace",
		Long:  `Deletes the tenant's record and wipes its namespace data. Reserved tenants refuse deletion unless --force is given, which wipes their data while keeping the tenant resolvable.`,
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteTenant,
	}

	// Schema commands
	schemaCmd = &cobra.Command{
		Use:   "schema",
		Short: "Manage the GraphQL schema",
	}
	schemaTenant string

	pushSchemaCmd = &cobra.Command{
		Use:   "push",
		Short: "Push the configured schema into a tenant's namespace",
		Run:   runPushSchema,
	}

	// Destructive data commands
	dropAllTenant    string
	confirmNamespace string

	dropAllCmd = &cobra.Command{
		Use:   "drop-all",
		Short: "DANGER: Wipe all data cluster-wide",
		Long:  `Wipes all data in the deployment. The --confirm-namespace value must match the resolved namespace of the target tenant; a mismatch aborts before anything is destroyed.`,
		Run:   runDropAll,
	}
	clearCmd = &cobra.Command{
		Use:   "clear [tenant_id]",
		Short: "Wipe one tenant's namespace, edges before nodes",
		Args:  cobra.ExactArgs(1),
		Run:   runClear,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Base URL of the graphgate server (overrides config.yaml and GRAPHGATE_URL)")

	rootCmd.AddCommand(healthCmd)

	rootCmd.AddCommand(capabilitiesCmd)
	capabilitiesCmd.Flags().BoolVar(&refreshCapabilities, "refresh", false,
		"Force a re-probe instead of serving the cached snapshot")

	rootCmd.AddCommand(tenantCmd)
	tenantCmd.AddCommand(listTenantsCmd)
	tenantCmd.AddCommand(createTenantCmd)
	tenantCmd.AddCommand(deleteTenantCmd)
	deleteTenantCmd.Flags().BoolVar(&forceDelete, "force", false,
		"Wipe a reserved tenant's data instead of refusing")

	rootCmd.AddCommand(schemaCmd)
	schemaCmd.AddCommand(pushSchemaCmd)
	pushSchemaCmd.Flags().StringVar(&schemaTenant, "tenant", "",
		"Target tenant (defaults to the default tenant)")

	rootCmd.AddCommand(dropAllCmd)
	dropAllCmd.Flags().StringVar(&dropAllTenant, "tenant", "",
		"Tenant whose namespace confirms the wipe (defaults to the default tenant)")
	dropAllCmd.Flags().StringVar(&confirmNamespace, "confirm-namespace", "",
		"Required confirmation: must match the tenant's resolved namespace")

	rootCmd.AddCommand(clearCmd)
}
