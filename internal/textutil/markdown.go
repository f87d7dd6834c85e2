// Package textutil provides text cleanup helpers for speech output.
package textutil

import (
	"regexp"
	"strings"
)

var (
	codeBlockRe     = regexp.MustCompile("```[\\s\\S]*?```")
	inlineCodeRe    = regexp.MustCompile("`([^`]+)`")
	boldStarRe      = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	boldUnderRe     = regexp.MustCompile(`__([^_]+)__`)
	italicStarRe    = regexp.MustCompile(`\B\*([^*]+)\*\B`)
	italicUnderRe   = regexp.MustCompile(`\b_([^_]+)_\b`)
	headerRe        = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	imageRe         = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	linkRe          = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	blockquoteRe    = regexp.MustCompile(`(?m)^>\s+`)
	hruleRe         = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	bulletRe        = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	numberedRe      = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	strikethroughRe = regexp.MustCompile(`~~([^~]+)~~`)
	multiNewlineRe  = regexp.MustCompile(`\n{3,}`)
)

// StripMarkdown removes markdown formatting so text reads naturally when
// spoken. Code blocks are dropped entirely; other constructs keep their
// inner text.
func StripMarkdown(text string) string {
	text = codeBlockRe.ReplaceAllString(text, "")
	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = boldStarRe.ReplaceAllString(text, "$1")
	text = boldUnderRe.ReplaceAllString(text, "$1")
	text = italicStarRe.ReplaceAllString(text, "$1")
	text = italicUnderRe.ReplaceAllString(text, "$1")
	text = headerRe.ReplaceAllString(text, "")
	text = imageRe.ReplaceAllString(text, "$1")
	text = linkRe.ReplaceAllString(text, "$1")
	text = blockquoteRe.ReplaceAllString(text, "")
	text = hruleRe.ReplaceAllString(text, "")
	text = bulletRe.ReplaceAllString(text, "")
	text = numberedRe.ReplaceAllString(text, "")
	text = strikethroughRe.ReplaceAllString(text, "$1")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
