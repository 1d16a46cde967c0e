package workflow

import (
	"errors"
	"testing"

	"voicelegal-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestValidateAnswer(t *testing.T) {
	tests := []struct {
		name    string
		q       models.QuestionDefinition
		answer  string
		want    string
		wantErr bool
	}{
		{"text collapses whitespace", models.QuestionDefinition{FieldType: models.FieldTypeText}, "  Ravi   Kumar ", "Ravi Kumar", false},
		{"address collapses whitespace", models.QuestionDefinition{FieldType: models.FieldTypeAddress}, "12, MG Road\n Pune", "12, MG Road Pune", false},
		{"required empty", models.QuestionDefinition{FieldType: models.FieldTypeText, IsRequired: true}, "   ", "", true},
		{"optional empty", models.QuestionDefinition{FieldType: models.FieldTypeEmail}, "", "", false},
		{"min length", models.QuestionDefinition{FieldType: models.FieldTypeText, ValidationRules: models.ValidationRules{MinLength: intPtr(5)}}, "abc", "", true},
		{"max length counts runes", models.QuestionDefinition{FieldType: models.FieldTypeText, ValidationRules: models.ValidationRules{MaxLength: intPtr(4)}}, "दीवार", "", true},
		{"iso date", models.QuestionDefinition{FieldType: models.FieldTypeDate}, "2025-12-01", "2025-12-01", false},
		{"day first date", models.QuestionDefinition{FieldType: models.FieldTypeDate}, "5/1/2026", "2026-01-05", false},
		{"long date", models.QuestionDefinition{FieldType: models.FieldTypeDate}, "3 February 2026", "2026-02-03", false},
		{"future date", models.QuestionDefinition{FieldType: models.FieldTypeDate, ValidationRules: models.ValidationRules{NotFuture: true}}, "2027-01-01", "", true},
		{"unparseable date", models.QuestionDefinition{FieldType: models.FieldTypeDate}, "last tuesday", "", true},
		{"phone strips punctuation", models.QuestionDefinition{FieldType: models.FieldTypePhone}, "+91 98765-43210", "+919876543210", false},
		{"phone too short", models.QuestionDefinition{FieldType: models.FieldTypePhone}, "12-34", "", true},
		{"email lower-cased", models.QuestionDefinition{FieldType: models.FieldTypeEmail}, "Ravi@Mail.IN", "ravi@mail.in", false},
		{"email without domain dot", models.QuestionDefinition{FieldType: models.FieldTypeEmail}, "ravi@localhost", "", true},
		{"email with display name", models.QuestionDefinition{FieldType: models.FieldTypeEmail}, "Ravi <ravi@mail.in>", "", true},
		{"number with commas", models.QuestionDefinition{FieldType: models.FieldTypeNumber}, "1,50,000", "150000", false},
		{"number below min", models.QuestionDefinition{FieldType: models.FieldTypeNumber, ValidationRules: models.ValidationRules{Min: floatPtr(1)}}, "0", "", true},
		{"number above max", models.QuestionDefinition{FieldType: models.FieldTypeNumber, ValidationRules: models.ValidationRules{Max: floatPtr(10)}}, "10.5", "", true},
		{"not a number", models.QuestionDefinition{FieldType: models.FieldTypeNumber}, "ten", "", true},
		{"NaN within bounds", models.QuestionDefinition{FieldType: models.FieldTypeNumber, ValidationRules: models.ValidationRules{Min: floatPtr(0), Max: floatPtr(100)}}, "NaN", "", true},
		{"infinity", models.QuestionDefinition{FieldType: models.FieldTypeNumber}, "Inf", "", true},
		{"negative infinity", models.QuestionDefinition{FieldType: models.FieldTypeNumber}, "-infinity", "", true},
		{"select canonical option", models.QuestionDefinition{FieldType: models.FieldTypeSelect, ValidationRules: models.ValidationRules{Options: []string{"Online", "In store"}}}, "in STORE", "In store", false},
		{"select unknown option", models.QuestionDefinition{FieldType: models.FieldTypeSelect, ValidationRules: models.ValidationRules{Options: []string{"Online"}}}, "phone", "", true},
		{"long text keeps newlines", models.QuestionDefinition{FieldType: models.FieldTypeLongText}, "line one\nline two ", "line one\nline two", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateAnswer(tt.q, tt.answer, fixedNow)
			if tt.wantErr {
				var verr *ValidationError
				require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
				assert.NotEmpty(t, verr.Reason)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Field: "email", Reason: "invalid email format"}
	assert.Equal(t, "invalid answer for email: invalid email format", err.Error())
}
