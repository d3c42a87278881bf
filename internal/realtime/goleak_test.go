// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package realtime

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestOrchestrator_StaleSweep_StopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	registry := NewRegistry()
	orchestrator := NewOrchestrator(registry, nil)

	ctx, cancel := context.WithCancel(context.Background())
	orchestrator.StartStaleSweep(ctx)

	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
}
