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
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

func runHealth(cmd *cobra.Command, args []string) {
	var resp struct {
		Status          string `json:"status"`
		ConnectionState string `json:"connection_state"`
	}
	if err := callGateway("GET", "/v1/graph/health", nil, "", &resp); err != nil {
		log.Fatalf("Health check failed: %v", err)
	}
	fmt.Printf("Status: %s (connection: %s)\n", resp.Status, resp.ConnectionState)
}

func runCapabilities(cmd *cobra.Command, args []string) {
	method, path := "GET", "/v1/graph/capabilities"
	if refreshCapabilities {
		method, path = "POST", "/v1/graph/capabilities/refresh"
	}

	var resp map[string]any
	if err := callGateway(method, path, nil, "", &resp); err != nil {
		log.Fatalf("Failed to fetch capabilities: %v", err)
	}
	printJSON(resp)
}

func runPushSchema(cmd *cobra.Command, args []string) {
	payload := map[string]string{}
	if schemaTenant != "" {
		payload["tenant_id"] = schemaTenant
	}

	fmt.Println("Pushing schema. This waits for the deployment to finish processing.")
	if err := callGateway("POST", "/v1/graph/admin/schema", payload, "", nil); err != nil {
		log.Fatalf("Schema push failed: %v", err)
	}
	fmt.Println("Schema pushed.")
}

func runDropAll(cmd *cobra.Command, args []string) {
	if confirmNamespace == "" {
		log.Fatalf("Refusing to drop all data without --confirm-namespace. " +
			"Run 'graphctl tenant list' to look up the namespace.")
	}

	payload := map[string]string{"confirm_namespace": confirmNamespace}
	if dropAllTenant != "" {
		payload["tenant_id"] = dropAllTenant
	}

	if err := callGateway("POST", "/v1/graph/admin/dropAll", payload, "", nil); err != nil {
		log.Fatalf("Drop-all failed: %v", err)
	}
	fmt.Println("All data dropped.")
}

func runClear(cmd *cobra.Command, args []string) {
	tenantID := args[0]

	var resp struct {
		Namespace    string `json:"namespace_id"`
		EdgesDeleted int    `json:"edges_deleted"`
		NodesDeleted int    `json:"nodes_deleted"`
	}
	payload := map[string]string{"tenant_id": tenantID}
	if err := callGateway("POST", "/v1/graph/admin/clear", payload, "", &resp); err != nil {
		log.Fatalf("Failed to clear tenant %q: %v", tenantID, err)
	}
	fmt.Printf("Cleared namespace %s: %d edges, %d nodes deleted\n",
		resp.Namespace, resp.EdgesDeleted, resp.NodesDeleted)
}
