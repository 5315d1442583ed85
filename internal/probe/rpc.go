// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package probe

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// probeClient bounds each individual probe call; the overall wait is
// bounded separately by WaitReady's timeout.
var probeClient = &http.Client{Timeout: 5 * time.Second}

// rpcResult is the subset of a JSON-RPC response the probes care
// about: a result arrived and no error did.
type rpcResult struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// callRPC posts a JSON-RPC request and reports whether a well-formed,
// non-error result came back. All failures are simply "not ready";
// diagnosing them is the job of the service's own logs.
func callRPC(url, user, pass, method string) bool {
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "1.0",
		"id":      "keeper-probe",
		"method":  method,
		"params":  []interface{}{},
	})
	if err != nil {
		return false
	}
	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	resp, err := probeClient.Do(req)
	if err != nil {
		logger.Tracef("rpc probe %s %s: %v", url, method, err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false
	}
	var result rpcResult
	if err := json.Unmarshal(raw, &result); err != nil {
		logger.Tracef("rpc probe %s %s: malformed response", url, method)
		return false
	}
	return len(result.Result) > 0 && string(result.Result) != "null" &&
		(len(result.Error) == 0 || string(result.Error) == "null")
}

// BaseLayerReady reports whether the base-layer node's RPC endpoint
// answers a block-count query with a numeric result.
func BaseLayerReady(rpcURL, rpcUser, rpcPassword string) func() bool {
	return func() bool {
		return callRPC(rpcURL, rpcUser, rpcPassword, "getblockcount")
	}
}

// IndexerReady reports whether the chain indexer's status endpoint
// answers successfully.
func IndexerReady(statusURL string) func() bool {
	return func() bool {
		resp, err := probeClient.Get(statusURL)
		if err != nil {
			logger.Tracef("indexer probe %s: %v", statusURL, err)
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}
}

// ValidatorReady reports whether the validator's RPC endpoint answers
// a sync-state query. The validator's readiness presumes the indexer
// is reachable; that dependency is checked here, not orchestrated.
func ValidatorReady(rpcURL string) func() bool {
	return func() bool {
		return callRPC(rpcURL, "", "", "get_sync_state")
	}
}
