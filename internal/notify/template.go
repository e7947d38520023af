package notify

import (
	"fmt"
	"strings"
	"sync"

	"github.com/minasoft/ris-listener/internal/db"
)

// Template is the SMS text sent for one notification kind.
type Template struct {
	Kind db.NotificationKind
	Body string
}

// TemplateEngine renders {{key}} placeholders. Keys missing from the data are
// left in place.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[db.NotificationKind]Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[db.NotificationKind]Template)}
	e.Register(Template{
		Kind: db.NotifyResultsReadyLogin,
		Body: "Sayın {{patient_name}}, {{study_description}} tetkikinizin sonucu hazırdır. Sonucunuzu görmek için giriş yapın: {{portal_url}}",
	})
	e.Register(Template{
		Kind: db.NotifyRegistrationInvitation,
		Body: "Sayın {{patient_name}}, {{study_description}} tetkikinizin sonucu hazırdır. Sonucunuzu görmek için hesap oluşturun: {{portal_url}}/register?accession={{accession_number}}",
	})
	return e
}

// Register adds or replaces the template for t.Kind.
func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.Kind] = t
}

func (e *TemplateEngine) Render(kind db.NotificationKind, data map[string]string) (string, error) {
	e.mu.RLock()
	t, ok := e.templates[kind]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("şablon bulunamadı: %q", kind)
	}

	body := t.Body
	for k, v := range data {
		body = strings.ReplaceAll(body, "{{"+k+"}}", v)
	}
	return body, nil
}
