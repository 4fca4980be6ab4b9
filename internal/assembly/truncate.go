package assembly

import (
	"strings"
	"unicode"

	"github.com/kadaliao/logseq-reflect-sub001/internal/logging"
)

// Ellipsis marks content that was cut to fit the token budget.
const Ellipsis = "…"

// Truncate bounds a context to the given token budget. Under-budget input
// is returned unchanged; otherwise the content is cut to the budget's
// character equivalent, backed off to the nearest preceding word boundary,
// and the ellipsis marker appended. SourceUUIDs and Metadata carry through
// untouched. Truncating twice with the same budget equals truncating once.
func Truncate(ctx Context, budget int) Context {
	if budget <= 0 || ctx.EstimatedTokens <= budget {
		return ctx
	}

	counter := NewTokenCounter()
	limit := counter.RuneBudget(budget)

	runes := []rune(ctx.Content)
	if limit > len(runes) {
		limit = len(runes)
	}
	cut := string(runes[:limit])

	// Never split a word: back off to the last whitespace boundary. A
	// single unbroken token longer than the whole budget (a URL, a
	// base64 blob) has no boundary to back off to; it keeps the hard
	// cut rather than truncating to nothing.
	if limit < len(runes) && !unicode.IsSpace(runes[limit]) {
		if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx >= 0 {
			cut = cut[:idx]
		}
	}
	cut = strings.TrimRightFunc(cut, unicode.IsSpace)

	out := ctx
	out.Content = cut + Ellipsis
	out.EstimatedTokens = counter.CountString(out.Content)
	out.WasTruncated = true

	logging.ContextDebug("truncated context from ~%d to ~%d tokens (budget %d)",
		ctx.EstimatedTokens, out.EstimatedTokens, budget)
	return out
}
