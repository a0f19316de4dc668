// Package refine post-processes model-suggested follow-up questions using
// keywords spotted in the recent conversation, so the suggestions stay close
// to what the user is actually asking about.
package refine

import (
	"fmt"
	"log"
	"strings"

	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/model/chat"
)

const (
	maxQuestions = 3
	maxTopics    = 2
	recentWindow = 3
)

// genericQuestion covers vocabulary entries without a dedicated template.
const genericQuestion = "%s에 대해 더 자세히 알아보시겠어요?"

// vocabulary is the closed domain keyword list, scanned in fixed order so
// refinement stays deterministic for a given conversation.
var vocabulary = []string{
	"채굴", "사기", "지갑", "투자", "수수료", "거래소", "보안", "인증", "출금", "시세",
}

// topicQuestions maps a keyword to its follow-up question. Keywords missing
// here fall back to the generic template.
var topicQuestions = map[string]string{
	"채굴":  "채굴 보상은 어떻게 계산되나요?",
	"사기":  "사기 피해가 의심될 때 어떻게 신고하나요?",
	"지갑":  "지갑 보안을 강화하는 방법이 궁금하신가요?",
	"투자":  "투자 위험을 줄이는 방법이 궁금하신가요?",
	"수수료": "수수료를 아끼는 방법이 있나요?",
	"거래소": "거래소를 고를 때 무엇을 확인해야 하나요?",
	"보안":  "계정 보안 설정은 어디에서 바꾸나요?",
	"인증":  "본인 인증 절차는 어떻게 진행되나요?",
}

// Refine merges model-suggested follow-ups with questions derived from
// topics in the recent conversation. Pure; returns at most 3 questions with
// exact-string duplicates removed. Empty input stays empty — a turn without
// follow-ups is a valid outcome, not an error.
func Refine(followUps []string, recent []chat.Message) []string {
	if len(followUps) == 0 {
		return nil
	}
	if len(followUps) < 2 {
		log.Printf("[refine] model suggested only %d follow-up question(s)", len(followUps))
	}

	merged := append([]string(nil), followUps...)
	for _, topic := range recentTopics(recent) {
		question, ok := topicQuestions[topic]
		if !ok {
			question = fmt.Sprintf(genericQuestion, topic)
		}
		merged = append(merged, question)
	}

	return dedupe(merged, maxQuestions)
}

// recentTopics scans the last messages for vocabulary keywords and returns
// the first distinct hits, capped at maxTopics.
func recentTopics(messages []chat.Message) []string {
	start := len(messages) - recentWindow
	if start < 0 {
		start = 0
	}

	var corpus strings.Builder
	for _, msg := range messages[start:] {
		corpus.WriteString(msg.Text)
		corpus.WriteByte('\n')
	}
	text := corpus.String()

	var topics []string
	for _, keyword := range vocabulary {
		if !strings.Contains(text, keyword) {
			continue
		}
		topics = append(topics, keyword)
		if len(topics) == maxTopics {
			break
		}
	}
	return topics
}

func dedupe(questions []string, limit int) []string {
	seen := make(map[string]struct{}, len(questions))
	result := make([]string, 0, limit)
	for _, q := range questions {
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		result = append(result, q)
		if len(result) == limit {
			break
		}
	}
	return result
}
