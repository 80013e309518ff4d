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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// tenantHeader mirrors the gateway's request header for tenant routing.
const tenantHeader = "X-Tenant-Id"

var httpClient = &http.Client{Timeout: 2 * time.Minute}

// callGateway sends one request to the graphgate server and decodes the JSON
// response into out (when out is non-nil). Non-2xx responses surface the
// server's error body.
func callGateway(method, path string, payload any, tenantID string, out any) error {
	url := strings.TrimRight(config.ServerURL, "/") + path

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenantID != "" {
		req.Header.Set(tenantHeader, tenantID)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call gateway at %s: %w", config.ServerURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			if apiErr.Code != "" {
				return fmt.Errorf("gateway returned %d (%s): %s", resp.StatusCode, apiErr.Code, apiErr.Error)
			}
			return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(raw))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse gateway response: %w", err)
	}
	return nil
}

// printJSON pretty-prints a decoded response for the operator.
func printJSON(v any) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to format response: %v", err)
	}
	fmt.Println(string(raw))
}
