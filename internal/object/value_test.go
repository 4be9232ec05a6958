package object

import (
	"math"
	"testing"
)

func TestValueSingletons(t *testing.T) {
	if !Null.IsNull() || Null.IsPointer() || Null.IsNumber() {
		t.Fatal("Null misclassified")
	}
	if !False.IsBool() || False.Bool() {
		t.Fatal("False misclassified")
	}
	if !True.IsBool() || !True.Bool() {
		t.Fatal("True misclassified")
	}
	if !Null.Falsey() || !False.Falsey() {
		t.Fatal("null/false must be falsey")
	}
	if True.Falsey() || Number(0).Falsey() {
		t.Fatal("true and 0.0 must be truthy")
	}
}

func TestNumberRoundTrip(t *testing.T) {
	cases := []float64{0, -0.0, 1, -1, 3.14159, math.Inf(1), math.Inf(-1), math.MaxFloat64, -123456.789}
	for _, f := range cases {
		v := Number(f)
		if !v.IsNumber() {
			t.Fatalf("Number(%v) not classified as a number", f)
		}
		if got := v.Number(); got != f && !(math.IsNaN(got) && math.IsNaN(f)) {
			t.Fatalf("Number(%v) round-tripped to %v", f, got)
		}
	}
}

func TestNaNCanonicalized(t *testing.T) {
	v := Number(math.NaN())
	if !v.IsNumber() {
		t.Fatal("NaN must still classify as a number")
	}
	if !math.IsNaN(v.Number()) {
		t.Fatal("NaN payload lost on round trip")
	}
}

func TestU64InlineRoundTrip(t *testing.T) {
	v := U64(12345)
	if !v.IsU64() {
		t.Fatal("U64 value not classified as u64")
	}
	if v.U64() != 12345 {
		t.Fatalf("got %d, want 12345", v.U64())
	}
}

func TestU64OverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for an out-of-range u64")
		}
	}()
	U64(uint64(pointerMask) + 1)
}

func TestPointerTagsDisjointFromNumbers(t *testing.T) {
	p := FromPointer(0x1000)
	if !p.IsPointer() || p.IsNumber() || p.IsString() || p.IsU64() {
		t.Fatal("non-string pointer misclassified")
	}
	s := FromStringPointer(0x1000)
	if !s.IsString() || s.IsPointer() || s.IsNumber() {
		t.Fatal("string pointer misclassified")
	}
	if p.Pointer() != s.Pointer() {
		t.Fatal("same address should decode identically once tag bits are masked off")
	}
}

func TestKindString(t *testing.T) {
	if Null.Kind().String() == "" {
		t.Fatal("Kind.String must not be empty")
	}
}
