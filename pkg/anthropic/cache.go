package anthropic

// CachedSystem wraps a static system prompt in a single block with a cache
// breakpoint, so repeated scoring calls reuse the cached prefix.
func CachedSystem(text, ttl string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: ttl}}}
}
