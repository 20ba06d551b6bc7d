package agents

// DefaultCatalog is the fixed, ordered set of sections a deep scan
// drives. Order matters: it is the submission order of round 0 and the
// display order in the dashboard.
var DefaultCatalog = []string{
	"technology",
	"performance",
	"seo",
	"content",
	"accessibility",
	"timing",
	"budget",
}

// KnownSection reports whether id belongs to the catalog.
func KnownSection(id string) bool {
	for _, s := range DefaultCatalog {
		if s == id {
			return true
		}
	}
	return false
}
