package reassembly

import (
	"regexp"
	"strings"

	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/model/chat"
)

// Protocol constants shared with the model's answer-format instructions.
// They must match the instructed output byte-for-byte.
const (
	followUpSeparator = "\n---\n"
	followUpPrefix    = "추천 질문:"
)

// defaultSourceTitle fills in citations the provider returned without one.
const defaultSourceTitle = "Untitled"

var listItemPattern = regexp.MustCompile(`^\s*(\*\*|-|\*|\d+\.)`)

// Grounded is the reassembled output of one provider turn, before
// follow-up refinement.
type Grounded struct {
	Answer            string
	AnswerChunks      []string
	FollowUpQuestions []string
	Sources           []chat.GroundingSource
}

// Reassemble splits a completed raw model response into the answer body,
// suggested follow-up questions and cleaned citation sources. It never
// fails; malformed input degrades to an answer-only result.
func Reassemble(raw string, sources []chat.GroundingSource) Grounded {
	answer, followUps := splitFollowUps(raw)
	return Grounded{
		Answer:            answer,
		AnswerChunks:      ChunkAnswer(answer),
		FollowUpQuestions: followUps,
		Sources:           CleanSources(sources),
	}
}

// splitFollowUps separates the answer body from the trailing follow-up
// block. Only lines carrying the follow-up prefix count as questions;
// everything else in the block is discarded.
func splitFollowUps(raw string) (string, []string) {
	parts := strings.SplitN(raw, followUpSeparator, 2)
	if len(parts) < 2 {
		return strings.TrimSpace(raw), nil
	}

	var questions []string
	for _, line := range strings.Split(parts[1], "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, followUpPrefix) {
			continue
		}
		question := strings.TrimSpace(strings.TrimPrefix(line, followUpPrefix))
		if question == "" {
			continue
		}
		questions = append(questions, question)
	}
	return strings.TrimSpace(parts[0]), questions
}

// ChunkAnswer breaks the answer body into display-sized chunks: one chunk
// per blank-line-separated paragraph, except paragraphs that read as lists,
// which explode into one chunk per line. A non-empty answer always yields
// at least one chunk.
func ChunkAnswer(answer string) []string {
	var chunks []string
	for _, paragraph := range strings.Split(answer, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		lines := nonEmptyLines(paragraph)
		if len(lines) > 1 && hasListItem(lines) {
			chunks = append(chunks, lines...)
			continue
		}
		chunks = append(chunks, paragraph)
	}

	if len(chunks) == 0 {
		if trimmed := strings.TrimSpace(answer); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
	}
	return chunks
}

func nonEmptyLines(paragraph string) []string {
	var lines []string
	for _, line := range strings.Split(paragraph, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func hasListItem(lines []string) bool {
	for _, line := range lines {
		if listItemPattern.MatchString(line) {
			return true
		}
	}
	return false
}

// CleanSources drops citations without a uri and deduplicates by uri,
// keeping first-seen order. Missing titles get a default.
func CleanSources(sources []chat.GroundingSource) []chat.GroundingSource {
	if len(sources) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(sources))
	cleaned := make([]chat.GroundingSource, 0, len(sources))
	for _, src := range sources {
		if src.URI == "" {
			continue
		}
		if _, ok := seen[src.URI]; ok {
			continue
		}
		seen[src.URI] = struct{}{}
		if src.Title == "" {
			src.Title = defaultSourceTitle
		}
		cleaned = append(cleaned, src)
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}
