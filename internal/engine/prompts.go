package engine

import "github.com/kadaliao/logseq-reflect-sub001/internal/assembly"

// mode pins down one operation: its fixed instruction text, which slice
// of the outline feeds the context, and how the result is rendered.
type mode struct {
	name        string
	system      string
	kind        assembly.Kind
	suffix      string
	materialize bool
}

var (
	modeAsk = mode{
		name: "ask",
		kind: assembly.KindPage,
		system: "You are a helpful assistant embedded in a personal knowledge outline. " +
			"Answer the question in the last line directly and concisely. " +
			"Use the preceding outline content as context when it is relevant; ignore it otherwise.",
	}

	modeSummarize = mode{
		name: "summarize",
		kind: assembly.KindPage,
		system: "Summarize the following outline content into a short, clear paragraph. " +
			"Preserve the key terms of the source and do not invent facts.",
	}

	modeFlashcards = mode{
		name:   "flashcards",
		kind:   assembly.KindSubtree,
		suffix: " #card",
		system: "Create spaced-repetition flashcards from the following content. " +
			"Write one card per line in the form 'Question :: Answer'. " +
			"Cover every distinct fact once; no commentary.",
	}

	modeBreakdown = mode{
		name:        "breakdown",
		kind:        assembly.KindSubtree,
		materialize: true,
		system: "Break the following task into small, concrete, actionable subtasks. " +
			"Output one subtask per line with no numbering and no commentary.",
	}
)
