// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package api exposes the auth services as an HTTP JSON
// query/mutation surface.
//
// Queries are GETs, mutations are POSTs. Nullable results encode as a
// JSON null inside the response envelope with HTTP 200; only
// validation failures carry structured detail (HTTP 422 with per-field
// messages). The session rides an http-only cookie managed by
// internal/session.
package api
