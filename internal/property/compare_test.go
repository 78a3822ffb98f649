package property

import (
	"errors"
	"testing"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name    string
		a       any
		op      Operator
		b       any
		want    bool
		wantErr error
	}{
		{"true", "on", OpTrue, nil, true, nil},
		{"false", 0.0, OpFalse, nil, true, nil},
		{"null", nil, OpNull, nil, true, nil},
		{"nnull", 0.0, OpNotNull, nil, true, nil},
		{"empty string", "", OpEmpty, nil, true, nil},
		{"empty list", []any{}, OpEmpty, nil, true, nil},
		{"nempty", "x", OpNEmpty, nil, true, nil},
		{"equal numbers across types", "20", OpEqual, 20.0, true, nil},
		{"equal strings", "sun", Operator("equal"), "sun", true, nil},
		{"not equal", "a", OpNEqual, "b", true, nil},
		{"less", 3, OpLess, 4.0, true, nil},
		{"less equal alias", 4, Operator("lte"), "4", true, nil},
		{"greater", 30000.0, OpGreater, "25000", true, nil},
		{"greater equal false", 1.0, Operator("gte"), 2.0, false, nil},
		{"ordering needs numbers", "warm", OpGreater, 3.0, false, ErrNotNumeric},
		{"between list", 5.0, OpBetween, []any{1.0, 10.0}, true, nil},
		{"between inclusive", 10.0, OpBetween, "1,10", true, nil},
		{"between dotted", 11.0, OpBetween, "1..10", false, nil},
		{"between wraps", 23.0, OpBetween, "22,6", true, nil},
		{"outside", 12.0, OpOutside, "22,6", true, nil},
		{"between bad range", 1.0, OpBetween, "1", false, ErrNotNumeric},
		{"contain string", "living room", OpContain, "room", true, nil},
		{"contain list", []any{"a", 2.0}, OpContain, 2.0, true, nil},
		{"unknown", 1, Operator("~"), 1, false, ErrUnknownOperator},
	}

	var c Comparator
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Compare(tt.a, tt.op, tt.b)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Compare() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Compare() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Compare(%v %s %v) = %v, want %v", tt.a, tt.op, tt.b, got, tt.want)
			}
		})
	}
}

func TestNeedsThreshold(t *testing.T) {
	if NeedsThreshold(OpTrue) || NeedsThreshold(OpNEmpty) {
		t.Error("unary operators should not need a threshold")
	}
	if !NeedsThreshold(OpGreater) || !NeedsThreshold("gte") || !NeedsThreshold(OpBetween) {
		t.Error("binary operators should need a threshold")
	}
}
