package schema

import "fmt"

// ValidateV2 structurally checks a parsed v2 document and returns one
// message per missing or malformed field. The input is never mutated;
// callers decide whether to proceed on a non-empty result.
func ValidateV2(doc map[string]any) []string {
	var errs []string

	if sv, ok := doc["schema_version"].(string); !ok || sv != Version2 {
		errs = append(errs, fmt.Sprintf("schema_version must be %q", Version2))
	}

	investigation, ok := doc["investigation"].(map[string]any)
	if !ok {
		errs = append(errs, "investigation section is required")
	} else {
		if id, ok := investigation["id"].(string); !ok || id == "" {
			errs = append(errs, "investigation.id is required")
		}
		if _, ok := investigation["created_at"]; !ok {
			errs = append(errs, "investigation.created_at is required")
		}
		if status, ok := investigation["status"].(string); !ok || status == "" {
			errs = append(errs, "investigation.status is required")
		}
	}

	questions, ok := doc["questions"].(map[string]any)
	if !ok {
		errs = append(errs, "questions section is required")
	} else {
		summary, ok := questions["summary"].(map[string]any)
		if !ok {
			errs = append(errs, "questions.summary is required")
		} else if _, ok := summary["total_count"]; !ok {
			errs = append(errs, "questions.summary.total_count is required")
		}
		if _, ok := questions["items"].([]any); !ok {
			errs = append(errs, "questions.items must be a list")
		}
	}

	findings, ok := doc["findings"].(map[string]any)
	if !ok {
		errs = append(errs, "findings section is required")
	} else {
		for area, content := range findings {
			if _, ok := content.([]any); !ok {
				errs = append(errs, fmt.Sprintf("findings.%s must be a list", area))
			}
		}
	}

	processing, ok := doc["processing"].(map[string]any)
	if !ok {
		errs = append(errs, "processing section is required")
	} else {
		if _, ok := processing["agents"].(map[string]any); !ok {
			errs = append(errs, "processing.agents must be an object")
		}
		if _, ok := processing["errors"].([]any); !ok {
			errs = append(errs, "processing.errors must be a list")
		}
	}

	return errs
}
