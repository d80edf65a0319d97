// internal/service/template_service.go
package service

import (
	"strings"

	"github.com/unclebandit/newsletter-engine/internal/model"
)

func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

func recipientData(rec model.Recipient) map[string]string {
	data := map[string]string{
		"first_name": rec.FirstName,
		"last_name":  rec.LastName,
		"email":      rec.Email,
	}
	for k, v := range data {
		if v == "" {
			data[k] = "<unknown>"
		}
	}
	return data
}
