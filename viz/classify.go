// ABOUTME: Pipeline classification of ledger contacts
// ABOUTME: One priority-ordered keyword table over the manual status, first match wins
package viz

import (
	"strings"

	"github.com/jpchacon09/APOLLO/models"
)

type classifierRule struct {
	keywords []string
	category models.PipelineCategory
}

// pipelineRules is evaluated in order. A status matching "interested" and
// "scheduled" is INTERESTED because the first rule wins.
var pipelineRules = []classifierRule{
	{keywords: []string{"interested", "interesado"}, category: models.CategoryInterested},
	{keywords: []string{"scheduled", "meeting", "agendado", "reunion", "reunión"}, category: models.CategoryScheduled},
	{keywords: []string{"not interested", "not a fit", "no interesado", "no perfil"}, category: models.CategoryRejected},
}

// Classify assigns a contact to exactly one pipeline category.
func Classify(rec *models.ContactRecord) models.PipelineCategory {
	status := strings.ToLower(rec.Status)
	for _, rule := range pipelineRules {
		if containsAny(status, rule.keywords) {
			return rule.category
		}
	}
	if strings.TrimSpace(rec.SequenceName) != "" {
		return models.CategoryInSequence
	}
	return models.CategoryNew
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
