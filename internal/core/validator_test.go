package core

import (
	"errors"
	"testing"

	"ziprank/internal/types"
)

type testZipStruct struct {
	Zip string `validate:"required,us_zip"`
}

type testCriteriaStruct struct {
	Kind   string  `validate:"required"`
	Weight float64 `validate:"required,gt=0,lte=100"`
}

func TestValidateStruct_Success(t *testing.T) {
	v := NewValidator(testLogger())

	if err := v.ValidateStruct(testZipStruct{Zip: "94110"}); err != nil {
		t.Errorf("expected nil error, got: %v", err)
	}
}

func TestValidateStruct_USZipTag(t *testing.T) {
	v := NewValidator(testLogger())

	cases := []struct {
		zip   string
		valid bool
	}{
		{"94110", true},
		{"9411", false},
		{"94110-1234", false},
		{"abcde", false},
	}

	for _, tc := range cases {
		err := v.ValidateStruct(testZipStruct{Zip: tc.zip})
		if tc.valid && err != nil {
			t.Errorf("zip %q: expected valid, got %v", tc.zip, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("zip %q: expected error", tc.zip)
		}
	}
}

func TestValidateStruct_Failure_ReturnsAppError(t *testing.T) {
	v := NewValidator(testLogger())

	err := v.ValidateStruct(testCriteriaStruct{Kind: "", Weight: -1})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}

	// The error code should map to the first validation failure.
	if appErr.Code != types.ErrCodeValidationMissingField {
		t.Errorf("expected code %s, got %s", types.ErrCodeValidationMissingField, appErr.Code)
	}

	if appErr.Details == nil {
		t.Fatal("expected non-nil details")
	}
	ve, ok := appErr.Details["validation_errors"]
	if !ok {
		t.Fatal("expected validation_errors key in details")
	}
	errs, ok := ve.([]ValidationError)
	if !ok {
		t.Fatalf("expected []ValidationError, got %T", ve)
	}
	if len(errs) < 2 {
		t.Errorf("expected at least 2 validation errors, got %d", len(errs))
	}
}

func TestValidateStruct_WeightRangeCode(t *testing.T) {
	v := NewValidator(testLogger())

	err := v.ValidateStruct(testCriteriaStruct{Kind: "schoolRating", Weight: 101})

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeValidationWeightRange {
		t.Errorf("expected weight range code, got %s", appErr.Code)
	}
}

func TestValidateStruct_InvalidZipCode(t *testing.T) {
	v := NewValidator(testLogger())

	err := v.ValidateStruct(testZipStruct{Zip: "123"})

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeValidationInvalidZip {
		t.Errorf("expected invalid zip code, got %s", appErr.Code)
	}
	if appErr.HTTPStatus() != 400 {
		t.Errorf("expected 400 mapping, got %d", appErr.HTTPStatus())
	}
}
