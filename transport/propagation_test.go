package transport

import (
	"testing"

	"github.com/cvsouth/reticulum-go/riface"
)

func TestPropagationMatrixMatchesSpec(t *testing.T) {
	cases := []struct {
		from, to riface.Mode
		want     bool
	}{
		{riface.Full, riface.Full, true},
		{riface.Full, riface.AP, false},
		{riface.Full, riface.Boundary, true},
		{riface.Full, riface.Roaming, true},
		{riface.AP, riface.Roaming, true},
		{riface.AP, riface.Full, false},
		{riface.Roaming, riface.Full, true},
		{riface.Roaming, riface.AP, false},
		{riface.Boundary, riface.Full, true},
		{riface.Boundary, riface.Boundary, true},
		{riface.Boundary, riface.Roaming, false},
	}
	for _, c := range cases {
		if got := EligibleToForward(c.from, c.to); got != c.want {
			t.Errorf("EligibleToForward(%v, %v) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestGatewayNormalizedToFull(t *testing.T) {
	if EligibleToForward(riface.Gateway, riface.AP) != EligibleToForward(riface.Full, riface.AP) {
		t.Fatalf("expected GATEWAY to be normalized to FULL for propagation purposes")
	}
}

func TestScenarioS6APInterfaceDoesNotReflectToAP(t *testing.T) {
	// An announce received on AP is not emitted on AP (scenario S6). Per the
	// propagation matrix it is not emitted on FULL or BOUNDARY either; only
	// ROAMING receives it.
	if EligibleToForward(riface.AP, riface.AP) {
		t.Fatalf("AP must not reflect announces back to AP")
	}
}
