package validation

import (
	"math"
	"testing"
)

type sample struct {
	Price    float64 `validate:"amount"`
	Source   string  `validate:"required,source"`
	Contract string  `validate:"omitempty,contract"`
}

func TestValidateStruct(t *testing.T) {
	cases := []struct {
		name    string
		in      sample
		wantErr bool
	}{
		{"valid", sample{Price: 1.5, Source: "provider"}, false},
		{"zero price", sample{Price: 0, Source: "fallback"}, false},
		{"negative price", sample{Price: -1, Source: "provider"}, true},
		{"NaN price", sample{Price: math.NaN(), Source: "provider"}, true},
		{"infinite price", sample{Price: math.Inf(1), Source: "provider"}, true},
		{"unknown source", sample{Price: 1, Source: "coinmarketcap"}, true},
		{"good contract", sample{Price: 1, Source: "provider", Contract: "0x1111111111166b7fe7bd91427724b487980afc69"}, false},
		{"short contract", sample{Price: 1, Source: "provider", Contract: "0x1234"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			errs := ValidateStruct(c.in)
			if (len(errs) > 0) != c.wantErr {
				t.Errorf("errs = %v; wantErr %v", errs, c.wantErr)
			}
		})
	}
}

func TestValidateVar_OneOf(t *testing.T) {
	if err := ValidateVar("type", "current", "required,oneof=current historical"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := ValidateVar("type", "bogus", "required,oneof=current historical")
	if err == nil {
		t.Fatal("expected error for bogus type")
	}
	if got, want := err.Error(), "type: type must be one of [current historical]"; got != want {
		t.Errorf("Error() = %q; want %q", got, want)
	}
	if err := ValidateVar("type", "", "required,oneof=current historical"); err == nil {
		t.Error("expected error for empty type")
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  USD\x00\x07 "); got != "USD" {
		t.Errorf("SanitizeString = %q; want %q", got, "USD")
	}
}
