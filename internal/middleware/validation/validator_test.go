package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRequestUsesJSONNames(t *testing.T) {
	tests := []struct {
		name string
		req  any
		want string
	}{
		{
			name: "acronym field",
			req: &struct {
				URL string `json:"url" validate:"required,http_url"`
			}{URL: "ftp://example.com/a"},
			want: "url must be a valid http(s) URL",
		},
		{
			name: "snake case field",
			req: &struct {
				DisplayName string `json:"display_name,omitempty" validate:"required"`
			}{},
			want: "display_name is required",
		},
		{
			name: "untagged field",
			req: &struct {
				Message string `validate:"required"`
			}{},
			want: "Message is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			assert.EqualError(t, err, tt.want)
		})
	}
}

func TestValidateRequestPasses(t *testing.T) {
	req := struct {
		URL string `json:"url" validate:"required,http_url"`
	}{URL: "https://example.com/teaser"}
	assert.NoError(t, ValidateRequest(&req))
}
