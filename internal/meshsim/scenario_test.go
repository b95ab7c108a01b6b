package meshsim

import (
	"context"
	"testing"
	"time"

	"meshroute/internal/logger"
)

func TestThreeHopDiscovery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res := ThreeHopDiscovery(ctx, &logger.NopLogger{})
	if !res.Success {
		t.Fatalf("S1 three-hop discovery failed: %s", res.Detail)
	}
}

func TestLateRreqDrop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res := LateRreqDrop(ctx, &logger.NopLogger{})
	if !res.Success {
		t.Fatalf("S6 late RREQ drop failed: %s", res.Detail)
	}
}

func TestLinkLossCascade(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out a full HELLO_LIFETIME window, skipped in -short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	res := LinkLossCascade(ctx, &logger.NopLogger{})
	if !res.Success {
		t.Fatalf("S4 link-loss cascade failed: %s", res.Detail)
	}
}
