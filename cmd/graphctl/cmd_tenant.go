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
	"net/url"

	"github.com/spf13/cobra"
)

type tenantInfo struct {
	TenantID  string `json:"tenant_id"`
	Namespace string `json:"namespace_id"`
	Reserved  bool   `json:"reserved"`
}

type tenantList struct {
	Tenants []tenantInfo `json:"tenants"`
}

func runListTenants(cmd *cobra.Command, args []string) {
	var resp tenantList
	if err := callGateway("GET", "/v1/graph/tenants", nil, "", &resp); err != nil {
		log.Fatalf("Failed to list tenants: %v", err)
	}

	if len(resp.Tenants) == 0 {
		fmt.Println("No tenants found.")
		return
	}

	fmt.Printf("%-24s %-12s %s\n", "TENANT", "NAMESPACE", "RESERVED")
	for _, t := range resp.Tenants {
		reserved := ""
		if t.Reserved {
			reserved = "yes"
		}
		fmt.Printf("%-24s %-12s %s\n", t.TenantID, t.Namespace, reserved)
	}
}

func runCreateTenant(cmd *cobra.Command, args []string) {
	tenantID := args[0]

	var resp tenantInfo
	payload := map[string]string{"tenant_id": tenantID}
	if err := callGateway("POST", "/v1/graph/tenants", payload, "", &resp); err != nil {
		log.Fatalf("Failed to create tenant %q: %v", tenantID, err)
	}
	fmt.Printf("Created tenant %q in namespace %s\n", resp.TenantID, resp.Namespace)
}

func runDeleteTenant(cmd *cobra.Command, args []string) {
	tenantID := args[0]

	path := "/v1/graph/tenants/" + url.PathEscape(tenantID)
	if forceDelete {
		path += "?force=true"
	}
	if err := callGateway("DELETE", path, nil, "", nil); err != nil {
		log.Fatalf("Failed to delete tenant %q: %v", tenantID, err)
	}
	fmt.Printf("Deleted tenant %q\n", tenantID)
}
