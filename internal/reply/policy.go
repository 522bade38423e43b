// Package reply turns the loop's final model text into the message returned
// to the user. It owns the refusal and apology wording and the terse output
// format.
package reply

import (
	"encoding/json"
	"strings"

	"github.com/haasonsaas/opsassist/pkg/models"
)

// Default user-facing wording.
const (
	DefaultRefusalMessage  = "요청하신 내용은 처리할 수 없습니다."
	DefaultApologyMessage  = "죄송합니다. 요청을 처리하는 데 필요한 단계가 너무 많아 중단했습니다. 질문을 나누어 다시 요청해 주세요."
	DefaultNoAnswerMessage = "답변을 만들지 못했습니다. 질문을 조금 바꿔 다시 요청해 주세요."
)

// DefaultUnsupportedPhrases mark a result as unsupported when found in its
// message.
var DefaultUnsupportedPhrases = []string{"처리할 수 없는 요청입니다"}

// Policy decides the final user-visible message.
type Policy struct {
	RefusalMessage     string   `yaml:"refusal_message" json:"refusal_message"`
	ApologyMessage     string   `yaml:"apology_message" json:"apology_message"`
	NoAnswerMessage    string   `yaml:"no_answer_message" json:"no_answer_message"`
	UnsupportedPhrases []string `yaml:"unsupported_phrases" json:"unsupported_phrases"`
}

// DefaultPolicy returns the built-in wording.
func DefaultPolicy() Policy {
	return Policy{
		RefusalMessage:     DefaultRefusalMessage,
		ApologyMessage:     DefaultApologyMessage,
		NoAnswerMessage:    DefaultNoAnswerMessage,
		UnsupportedPhrases: append([]string(nil), DefaultUnsupportedPhrases...),
	}
}

// WithDefaults fills empty fields from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if strings.TrimSpace(p.RefusalMessage) == "" {
		p.RefusalMessage = d.RefusalMessage
	}
	if strings.TrimSpace(p.ApologyMessage) == "" {
		p.ApologyMessage = d.ApologyMessage
	}
	if strings.TrimSpace(p.NoAnswerMessage) == "" {
		p.NoAnswerMessage = d.NoAnswerMessage
	}
	if len(p.UnsupportedPhrases) == 0 {
		p.UnsupportedPhrases = d.UnsupportedPhrases
	}
	return p
}

// Signals summarizes a batch of results.
type Signals struct {
	Error       bool
	Unsupported bool
}

// Terminal reports whether the batch must end tool use.
func (s Signals) Terminal() bool {
	return s.Error || s.Unsupported
}

type payloadFlags struct {
	Message     string `json:"message"`
	Unsupported bool   `json:"unsupported"`
}

// Signals inspects results for error flags and the unsupported marker.
func (p Policy) Signals(results []models.OperationResult) Signals {
	var s Signals
	for _, r := range results {
		if r.IsError {
			s.Error = true
		}
		var flags payloadFlags
		if err := json.Unmarshal(r.Payload, &flags); err != nil {
			continue
		}
		if flags.Unsupported || p.mentionsUnsupported(flags.Message) {
			s.Unsupported = true
		}
	}
	return s
}

func (p Policy) mentionsUnsupported(message string) bool {
	for _, phrase := range p.UnsupportedPhrases {
		if phrase != "" && strings.Contains(message, phrase) {
			return true
		}
	}
	return false
}

// Finalize picks the final message. An aborted loop always apologizes, a
// refusal signal always refuses, an empty answer without signals gets the
// no-answer message, and any other text is rendered tersely.
func (p Policy) Finalize(state models.LoopState, modelText string, last []models.OperationResult, userAskedForTable bool) string {
	p = p.WithDefaults()
	if state == models.StateAbortedLimit {
		return p.ApologyMessage
	}
	sig := p.Signals(last)
	if sig.Unsupported || sig.Error || p.mentionsUnsupported(modelText) {
		return p.RefusalMessage
	}
	text := strings.TrimSpace(modelText)
	if text == "" {
		return p.NoAnswerMessage
	}
	if userAskedForTable {
		return text
	}
	return Terse(text)
}

// Instructions is the output-format section of the system prompt.
func (p Policy) Instructions() string {
	p = p.WithDefaults()
	var b strings.Builder
	b.WriteString("## 답변 형식\n")
	b.WriteString("- 한국어로 짧고 명확하게 답한다. 불필요한 인사말과 반복 설명은 생략한다.\n")
	b.WriteString("- 금액은 원 단위 정수로, 천 단위 구분 기호를 붙인다.\n")
	b.WriteString("- 사용자가 표를 요청한 경우에만 마크다운 표를 사용한다. 그 외에는 한 줄에 한 항목씩 나열한다.\n")
	b.WriteString("- 조회 결과가 없으면 없다고 답하고 추측하지 않는다.\n")
	b.WriteString("- 작업으로 처리할 수 없는 요청이면 report_unsupported_request를 호출한다.\n")
	b.WriteString("- 작업 결과에 오류가 있으면 다음 문장만 답한다: ")
	b.WriteString(p.RefusalMessage)
	b.WriteString("\n")
	return b.String()
}
