package main

import (
	"reflect"
	"testing"
)

func TestIntListFlag(t *testing.T) {
	var l intListFlag
	if err := l.Set("0, 1,3"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !reflect.DeepEqual([]int(l), []int{0, 1, 3}) {
		t.Errorf("parsed %v, want [0 1 3]", l)
	}
	if l.String() != "0,1,3" {
		t.Errorf("String() = %q, want 0,1,3", l.String())
	}
	if err := l.Set("0,x"); err == nil {
		t.Error("non-integer token accepted")
	}
}

func TestFloatListFlag(t *testing.T) {
	var l floatListFlag
	if err := l.Set("915e6, 921e6"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !reflect.DeepEqual([]float64(l), []float64{915e6, 921e6}) {
		t.Errorf("parsed %v, want [9.15e+08 9.21e+08]", l)
	}
	if err := l.Set("10,abc"); err == nil {
		t.Error("non-numeric token accepted")
	}
}

func TestStringListFlag(t *testing.T) {
	var l stringListFlag
	if err := l.Set("TX/RX, RX2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !reflect.DeepEqual([]string(l), []string{"TX/RX", "RX2"}) {
		t.Errorf("parsed %v", l)
	}
}

func TestReplicate(t *testing.T) {
	if got := replicateFloats([]float64{10}, 3); !reflect.DeepEqual(got, []float64{10, 10, 10}) {
		t.Errorf("replicateFloats = %v", got)
	}
	// Already-plural lists pass through untouched for validation to judge.
	in := []float64{1, 2}
	if got := replicateFloats(in, 3); !reflect.DeepEqual(got, in) {
		t.Errorf("plural list changed: %v", got)
	}
	if got := replicateStrings([]string{"RX2"}, 2); !reflect.DeepEqual(got, []string{"RX2", "RX2"}) {
		t.Errorf("replicateStrings = %v", got)
	}
}
