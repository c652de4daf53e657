// Package turn orchestrates a single question-answer exchange: control
// messages, topic routing, retrieval, prompt composition, and the final
// completion with its fallback replies.
package turn

import "strings"

// PromptState is the per-turn working copy of the system prompt. It starts
// from the configured base prompt and grows as retrieved passages are
// appended, subject to a soft length cap. A fresh state is built for every
// turn, so no passage ever leaks across requests.
type PromptState struct {
	base    string
	working string
	cap     int
}

// NewPromptState derives a working prompt from base with the given soft
// length cap.
func NewPromptState(base string, cap int) *PromptState {
	return &PromptState{base: base, working: base, cap: cap}
}

// Update appends text to the working prompt unconditionally.
func (p *PromptState) Update(text string) {
	p.working += text
}

// Mutate replaces the working prompt wholesale. The base is unchanged, so
// Unchanged reports true only if the new value equals it.
func (p *PromptState) Mutate(text string) {
	p.working = text
}

// AddPassage appends a retrieved passage on its own line. The passage is
// dropped when the working prompt has already reached the soft cap or when
// the same text is already present.
func (p *PromptState) AddPassage(text string) {
	if len(p.working) > p.cap {
		return
	}
	if strings.Contains(p.working, text) {
		return
	}
	p.working += "\n" + text
}

// Unchanged reports whether nothing has been added since the state was
// created. The caller uses it to detect a turn with no usable context.
func (p *PromptState) Unchanged() bool {
	return p.working == p.base
}

// String returns the current working prompt.
func (p *PromptState) String() string {
	return p.working
}
