package ragkb

// Converter converts clean HTML (e.g., from an Extractor) to Markdown.
// Relative links and images are resolved against pageURL when it is set.
type Converter interface {
	Convert(html string, pageURL string) (string, error)
}
