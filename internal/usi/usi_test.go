package usi

import (
	"testing"
	"time"

	"github.com/komadai/shogi-engine/internal/engine"
	"github.com/komadai/shogi-engine/internal/shogi"
)

func TestParseGoOptionsFischer(t *testing.T) {
	o := parseGoOptions([]string{"btime", "60000", "wtime", "30000", "binc", "1000", "winc", "2000"})
	if o.btime != 60*time.Second {
		t.Errorf("btime = %v, want 60s", o.btime)
	}
	if o.wtime != 30*time.Second {
		t.Errorf("wtime = %v, want 30s", o.wtime)
	}
	if o.binc != time.Second {
		t.Errorf("binc = %v, want 1s", o.binc)
	}
	if o.winc != 2*time.Second {
		t.Errorf("winc = %v, want 2s", o.winc)
	}
}

func TestParseGoOptionsPonderAndInfinite(t *testing.T) {
	o := parseGoOptions([]string{"ponder", "btime", "60000", "wtime", "60000"})
	if !o.ponder {
		t.Error("expected ponder true")
	}

	o2 := parseGoOptions([]string{"infinite"})
	if !o2.infinite {
		t.Error("expected infinite true")
	}
}

func TestParseGoOptionsDepthAndNodes(t *testing.T) {
	o := parseGoOptions([]string{"depth", "12", "nodes", "500000"})
	if o.depth != 12 {
		t.Errorf("depth = %d, want 12", o.depth)
	}
	if o.nodes != 500000 {
		t.Errorf("nodes = %d, want 500000", o.nodes)
	}
}

func TestLimitsForInfinite(t *testing.T) {
	o := parseGoOptions([]string{"infinite"})
	limits := limitsFor(o, shogi.Black)
	if limits.TimeControl.Kind != engine.Infinite {
		t.Errorf("TimeControl.Kind = %v, want Infinite", limits.TimeControl.Kind)
	}
}

func TestLimitsForFischerPicksSideRelativeIncrement(t *testing.T) {
	o := parseGoOptions([]string{"btime", "10000", "wtime", "20000", "binc", "100", "winc", "200"})

	black := limitsFor(o, shogi.Black)
	if black.TimeControl.Kind != engine.Fischer {
		t.Fatalf("Kind = %v, want Fischer", black.TimeControl.Kind)
	}
	if black.TimeControl.Increment != 100*time.Millisecond {
		t.Errorf("black increment = %v, want 100ms", black.TimeControl.Increment)
	}

	white := limitsFor(o, shogi.White)
	if white.TimeControl.Increment != 200*time.Millisecond {
		t.Errorf("white increment = %v, want 200ms", white.TimeControl.Increment)
	}
}

func TestLimitsForByoyomi(t *testing.T) {
	o := parseGoOptions([]string{"btime", "10000", "wtime", "10000", "byoyomi", "5000"})
	limits := limitsFor(o, shogi.Black)
	if limits.TimeControl.Kind != engine.Byoyomi {
		t.Fatalf("Kind = %v, want Byoyomi", limits.TimeControl.Kind)
	}
	if limits.TimeControl.ByoyomiMS != 5*time.Second {
		t.Errorf("ByoyomiMS = %v, want 5s", limits.TimeControl.ByoyomiMS)
	}
}

func TestLimitsForPonderPreservesRealTimeControl(t *testing.T) {
	o := parseGoOptions([]string{"ponder", "btime", "10000", "wtime", "10000", "byoyomi", "5000"})
	limits := limitsFor(o, shogi.Black)
	if limits.TimeControl.Kind != engine.Byoyomi {
		t.Errorf("ponder go should still carry the real time control, got Kind=%v", limits.TimeControl.Kind)
	}
}

func TestLimitsForFixedNodes(t *testing.T) {
	o := parseGoOptions([]string{"nodes", "12345"})
	limits := limitsFor(o, shogi.Black)
	if limits.TimeControl.Kind != engine.FixedNodes {
		t.Fatalf("Kind = %v, want FixedNodes", limits.TimeControl.Kind)
	}
	if limits.TimeControl.NodeLimit != 12345 {
		t.Errorf("NodeLimit = %d, want 12345", limits.TimeControl.NodeLimit)
	}
}

func TestSplitNameValue(t *testing.T) {
	name, value := splitNameValue([]string{"name", "USI_Hash", "value", "256"})
	if name != "USI_Hash" {
		t.Errorf("name = %q, want USI_Hash", name)
	}
	if value != "256" {
		t.Errorf("value = %q, want 256", value)
	}
}

func TestSplitNameValueMultiWordValue(t *testing.T) {
	name, value := splitNameValue([]string{"name", "EvalFile", "value", "my", "net.bin"})
	if name != "EvalFile" {
		t.Errorf("name = %q, want EvalFile", name)
	}
	if value != "my net.bin" {
		t.Errorf("value = %q, want %q", value, "my net.bin")
	}
}
