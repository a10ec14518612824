package validation

import (
	"errors"
	"testing"
)

type sample struct {
	Kind  string `json:"kind" validate:"required,oneof=star unstar"`
	Token string `json:"push_token" validate:"required,max=8"`
}

func TestValidateStruct(t *testing.T) {
	if err := ValidateStruct(sample{Kind: "star", Token: "abc"}); err != nil {
		t.Fatalf("valid struct rejected: %v", err)
	}

	err := ValidateStruct(sample{Kind: "boost"})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if len(verr.Fields) != 2 {
		t.Fatalf("fields = %+v", verr.Fields)
	}

	got := map[string]string{}
	for _, f := range verr.Fields {
		got[f.Field] = f.Tag
	}
	if got["kind"] != "oneof" || got["push_token"] != "required" {
		t.Errorf("failed rules = %v", got)
	}
}
