// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/config"
)

// ServerStatus holds the probed health of a running server.
type ServerStatus struct {
	Addr  string `json:"addr"`
	Live  bool   `json:"live"`
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// newStatusCmd creates the status subcommand.
func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running Gatehouse server",
		Long:  `Probe the health endpoints of a running Gatehouse server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, nil)
			if err != nil {
				return err
			}
			return runStatus(cmd, cfg.MetricsAddr, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, metricsAddr string, jsonOutput bool) error {
	status := probeStatus(metricsAddr)

	if jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	switch {
	case !status.Live:
		reason := "not running"
		if status.Error != "" {
			reason = status.Error
		}
		cmd.Printf("gatehouse at %s: stopped (%s)\n", status.Addr, reason)
	case !status.Ready:
		cmd.Printf("gatehouse at %s: running, not ready\n", status.Addr)
	default:
		cmd.Printf("gatehouse at %s: running, ready\n", status.Addr)
	}
	return nil
}

// probeStatus hits the liveness and readiness endpoints on the metrics
// address.
func probeStatus(metricsAddr string) ServerStatus {
	status := ServerStatus{Addr: metricsAddr}
	client := &http.Client{Timeout: 2 * time.Second}

	liveResp, err := client.Get("http://" + metricsAddr + "/healthz/liveness")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	_ = liveResp.Body.Close()
	status.Live = liveResp.StatusCode == http.StatusOK

	readyResp, err := client.Get("http://" + metricsAddr + "/healthz/readiness")
	if err != nil {
		return status
	}
	_ = readyResp.Body.Close()
	status.Ready = readyResp.StatusCode == http.StatusOK

	return status
}
