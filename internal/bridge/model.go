package bridge

import "strings"

// API model identifiers used by the non-streaming fallback. The native path
// passes only the short tier names below; the HTTP API needs full ids.
const (
	apiModelOpus   = "claude-opus-4-20250514"
	apiModelSonnet = "claude-sonnet-4-20250514"
	apiModelHaiku  = "claude-3-5-haiku-20241022"
)

// MapModel maps a caller-facing model identifier to the runtime's short
// model name. Matching is deliberately coarse: any id mentioning opus is
// opus, any mentioning haiku is haiku, everything else is sonnet. The tiers
// change far less often than the dated full ids callers send.
func MapModel(id string) string {
	lower := strings.ToLower(id)
	switch {
	case strings.Contains(lower, "opus"):
		return "opus"
	case strings.Contains(lower, "haiku"):
		return "haiku"
	default:
		return "sonnet"
	}
}

// MapAPIModel maps a caller-facing model identifier to a full API model id.
// Ids that already look like full identifiers pass through untouched.
func MapAPIModel(id string) string {
	if strings.HasPrefix(strings.ToLower(id), "claude-") {
		return id
	}
	switch MapModel(id) {
	case "opus":
		return apiModelOpus
	case "haiku":
		return apiModelHaiku
	default:
		return apiModelSonnet
	}
}
