package anthropic

// BuildCachedSystemBlocks wraps a system prompt in a single block with a
// 1-hour cache breakpoint. The listing extraction prompt is identical across
// requests, so every call after the first reads it from the prompt cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{
		Text:         text,
		CacheControl: &CacheControl{TTL: "1h"},
	}}
}
