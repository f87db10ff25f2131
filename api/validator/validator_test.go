package validator

import (
	"testing"
)

type loginRequest struct {
	PhoneNumber string `validate:"required"`
	Code        string `validate:"required,min=4"`
	AvatarURL   string `validate:"omitempty,url"`
}

func TestValidator_ValidateStruct(t *testing.T) {
	v := New()

	tests := []struct {
		name       string
		input      interface{}
		wantFields []string
	}{
		{
			name: "Valid",
			input: loginRequest{
				PhoneNumber: "+15550001111",
				Code:        "123456",
			},
		},
		{
			name:       "MissingRequired",
			input:      loginRequest{},
			wantFields: []string{"PhoneNumber", "Code"},
		},
		{
			name: "CodeTooShort",
			input: loginRequest{
				PhoneNumber: "+15550001111",
				Code:        "12",
			},
			wantFields: []string{"Code"},
		},
		{
			name: "BadURL",
			input: loginRequest{
				PhoneNumber: "+15550001111",
				Code:        "123456",
				AvatarURL:   "not a url",
			},
			wantFields: []string{"AvatarURL"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := v.ValidateStruct(tt.input)

			if len(tt.wantFields) == 0 && len(errs) > 0 {
				t.Errorf("Got unexpected errors: %v", errs)
				return
			}

			for _, want := range tt.wantFields {
				found := false
				for _, e := range errs {
					if e.Field == want {
						found = true
						if e.Message == "" {
							t.Errorf("Field %s has empty message", want)
						}
					}
				}
				if !found {
					t.Errorf("Expected a validation error for field %s, got %v", want, errs)
				}
			}
		})
	}
}

func TestValidator_Validate(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		value   interface{}
		tag     string
		wantErr bool
	}{
		{name: "ValidEmail", value: "sam@example.com", tag: "email"},
		{name: "InvalidEmail", value: "not-an-email", tag: "email", wantErr: true},
		{name: "RequiredPresent", value: "value", tag: "required"},
		{name: "RequiredEmpty", value: "", tag: "required", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := v.Validate(tt.value, tt.tag)

			if tt.wantErr && len(errs) == 0 {
				t.Error("Expected errors but got none")
			}
			if !tt.wantErr && len(errs) > 0 {
				t.Errorf("Got unexpected errors: %v", errs)
			}
		})
	}
}
