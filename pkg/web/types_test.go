package web_test

import (
	"errors"
	"testing"

	"github.com/dukex/escalate/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New(validator.WithRequiredStructEnabled())

	tests := []struct {
		name      string
		request   any
		wantErr   bool
		errFields []string
	}{
		{
			name:    "set active true",
			request: web.SetActiveRequest{Active: boolPtr(true)},
		},
		{
			name:    "set active false",
			request: web.SetActiveRequest{Active: boolPtr(false)},
		},
		{
			name:      "set active missing",
			request:   web.SetActiveRequest{},
			wantErr:   true,
			errFields: []string{"Active"},
		},
		{
			name:    "evaluate with empty context",
			request: web.EvaluateTriggersRequest{Industry: "banking"},
		},
		{
			name:      "evaluate missing industry",
			request:   web.EvaluateTriggersRequest{},
			wantErr:   true,
			errFields: []string{"Industry"},
		},
		{
			name:    "start execution",
			request: web.StartExecutionRequest{WorkflowID: "loan", ConversationID: "conv-1"},
		},
		{
			name:      "start execution missing ids",
			request:   web.StartExecutionRequest{Variables: map[string]any{"a": 1}},
			wantErr:   true,
			errFields: []string{"WorkflowID", "ConversationID"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Struct(tt.request)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			var validationErrors validator.ValidationErrors
			require.True(t, errors.As(err, &validationErrors))

			fields := make([]string, 0, len(validationErrors))
			for _, fieldErr := range validationErrors {
				fields = append(fields, fieldErr.Field())
			}

			assert.ElementsMatch(t, tt.errFields, fields)
		})
	}
}
