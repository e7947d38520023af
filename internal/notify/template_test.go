package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minasoft/ris-listener/internal/db"
)

func TestTemplateEngineBuiltIns(t *testing.T) {
	eng := NewTemplateEngine()
	data := map[string]string{
		"patient_name":      "Jane",
		"study_description": "CT Chest",
		"accession_number":  "ACC-1",
		"portal_url":        "https://portal.test",
	}

	body, err := eng.Render(db.NotifyResultsReadyLogin, data)
	require.NoError(t, err)
	assert.Contains(t, body, "Jane")
	assert.Contains(t, body, "CT Chest")
	assert.Contains(t, body, "https://portal.test")
	assert.NotContains(t, body, "{{")

	body, err = eng.Render(db.NotifyRegistrationInvitation, data)
	require.NoError(t, err)
	assert.Contains(t, body, "https://portal.test/register?accession=ACC-1")
}

func TestTemplateEngineKeepsUnknownPlaceholders(t *testing.T) {
	eng := NewTemplateEngine()
	eng.Register(Template{Kind: "custom", Body: "Hi {{name}}, code {{code}}"})

	body, err := eng.Render("custom", map[string]string{"name": "Ali"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ali, code {{code}}", body)
}

func TestTemplateEngineUnknownKind(t *testing.T) {
	_, err := NewTemplateEngine().Render("nope", nil)
	assert.Error(t, err)
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "****4567", maskPhone("5551234567"))
	assert.Equal(t, "****", maskPhone("12"))
	assert.NoError(t, LogSMSSender{}.SendSMS(context.Background(), "5551234567", "body"))
}
