// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"database/sql"
)

// DBChecker pings the database connection pool.
type DBChecker struct {
	DB *sql.DB
}

func (c *DBChecker) Name() string { return "database" }

func (c *DBChecker) Check(ctx context.Context) CheckResult {
	if err := c.DB.PingContext(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// PingFunc probes a dependency that exposes no richer interface than
// "can it answer right now" (search backend, LLM API).
type PingFunc func(ctx context.Context) error

// FuncChecker adapts a PingFunc to the Checker interface.
type FuncChecker struct {
	CheckerName string
	Ping        PingFunc
	// DegradeOnly marks a dependency whose failure degrades rather than
	// fails readiness (e.g. the LLM backend: chat breaks, but browsing and
	// streaming do not).
	DegradeOnly bool
}

func (c *FuncChecker) Name() string { return c.CheckerName }

func (c *FuncChecker) Check(ctx context.Context) CheckResult {
	if err := c.Ping(ctx); err != nil {
		status := StatusUnhealthy
		if c.DegradeOnly {
			status = StatusDegraded
		}
		return CheckResult{Status: status, Message: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}
