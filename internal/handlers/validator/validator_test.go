package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type createForm struct {
	Type      string   `validate:"omitempty,job_type"`
	TargetUrl string   `validate:"required,url"`
	Sections  []string `validate:"omitempty,unique,dive,section"`
}

func newJobValidator() *Validator {
	v := NewValidator()
	v.Register(NewJobValidationRules()...)
	return v
}

func TestValidateCreateForm(t *testing.T) {
	tests := []struct {
		name    string
		form    createForm
		wantErr bool
	}{
		{
			name: "valid full form",
			form: createForm{Type: "deep-scan", TargetUrl: "https://example.com", Sections: []string{"seo", "performance"}},
		},
		{
			name: "type and sections optional",
			form: createForm{TargetUrl: "https://example.com"},
		},
		{
			name:    "missing url",
			form:    createForm{Type: "deep-scan"},
			wantErr: true,
		},
		{
			name:    "not a url",
			form:    createForm{TargetUrl: "example dot com"},
			wantErr: true,
		},
		{
			name:    "unknown job type",
			form:    createForm{Type: "full-scan", TargetUrl: "https://example.com"},
			wantErr: true,
		},
		{
			name:    "unknown section",
			form:    createForm{TargetUrl: "https://example.com", Sections: []string{"seo", "astrology"}},
			wantErr: true,
		},
		{
			name:    "duplicate sections",
			form:    createForm{TargetUrl: "https://example.com", Sections: []string{"seo", "seo"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newJobValidator().Struct(tt.form)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
