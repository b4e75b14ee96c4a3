package middleware

import (
	"strings"
	"testing"

	"github.com/elanza/clinic/internal/platform/apperr"
)

type sampleRequest struct {
	ServiceID string   `json:"serviceId" validate:"required"`
	Sessions  int      `json:"sessions" validate:"min=1"`
	Method    string   `json:"method" validate:"oneof=efectivo tarjeta"`
	Slots     []string `json:"slots" validate:"dive,hhmm"`
}

func TestValidator_Valid(t *testing.T) {
	v := NewValidator()
	err := v.Validate(&sampleRequest{ServiceID: "masaje", Sessions: 3, Method: "efectivo", Slots: []string{"09:00", "17:30"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidator_ReportsJSONFieldNames(t *testing.T) {
	v := NewValidator()
	err := v.Validate(&sampleRequest{Sessions: 0, Method: "cheque", Slots: []string{"9:00", "24:00"}})
	if apperr.KindOf(err) != apperr.InvalidArgument {
		t.Fatalf("expected invalid-argument, got %v", err)
	}
	msg := err.(*apperr.Error).Message
	for _, want := range []string{"serviceId is required", "sessions must be at least 1", "method must be one of", "slots[0] must be HH:MM", "slots[1] must be HH:MM"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestIsHHMM(t *testing.T) {
	tests := map[string]bool{
		"00:00": true, "09:30": true, "23:59": true,
		"24:00": false, "12:60": false, "9:00": false, "ab:cd": false, "": false,
	}
	for in, want := range tests {
		if got := isHHMM(in); got != want {
			t.Errorf("isHHMM(%q) = %v, want %v", in, got, want)
		}
	}
}
