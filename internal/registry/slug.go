package registry

import (
	"strings"

	"github.com/stoewer/go-strcase"
)

// synonyms collapses common aliases onto a canonical appId.
var synonyms = map[string]string{
	"google-sheets": "sheets",
	"gsheets":       "sheets",
	"sheet":         "sheets",
	"google-drive":  "drive",
	"google-calendar": "calendar",
	"gcal":          "calendar",
}

// CoreAppID is always a valid appId, for transforms, branches, HTTP, and
// schedule node types that have no external connector.
const CoreAppID = "core"

// NormalizeAppID lowercases and hyphenates appId, then collapses synonyms.
func NormalizeAppID(appID string) string {
	slug := strcase.KebabCase(strings.TrimSpace(appID))
	slug = strings.ToLower(slug)
	if canonical, ok := synonyms[slug]; ok {
		return canonical
	}
	return slug
}
