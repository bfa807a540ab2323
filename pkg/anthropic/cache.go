package anthropic

// CachedSystem builds a single system block with an ephemeral cache
// breakpoint. Persona prompts repeat across every call of a batch, so the
// second and later calls read them from the prompt cache.
func CachedSystem(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: "5m"}}}
}
