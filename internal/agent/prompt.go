package agent

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/opsassist/internal/catalog"
	"github.com/haasonsaas/opsassist/internal/datetime"
	"github.com/haasonsaas/opsassist/internal/identity"
	"github.com/haasonsaas/opsassist/internal/reply"
)

// PromptBuilder assembles the system prompt for one request.
type PromptBuilder struct {
	catalog    *catalog.Catalog
	dates      *datetime.Resolver
	policy     reply.Policy
	vocabulary *Vocabulary
}

// NewPromptBuilder creates a prompt builder. vocabulary may be nil.
func NewPromptBuilder(cat *catalog.Catalog, dates *datetime.Resolver, policy reply.Policy, vocabulary *Vocabulary) *PromptBuilder {
	return &PromptBuilder{
		catalog:    cat,
		dates:      dates,
		policy:     policy.WithDefaults(),
		vocabulary: vocabulary,
	}
}

// Build renders the prompt for caller. The current date is read on every
// call so long-running servers roll over at local midnight.
func (b *PromptBuilder) Build(caller identity.Caller) string {
	var sb strings.Builder

	sb.WriteString("당신은 매장 운영 ERP의 업무 도우미입니다. 제공된 작업(tool)만 사용해 데이터를 조회하거나 기록하고, 작업 결과에 근거해서만 답합니다.\n\n")

	now := b.dates.Now()
	sb.WriteString("## 기준 정보\n")
	fmt.Fprintf(&sb, "- 오늘: %s (%s요일), 시간대 %s\n",
		now.Format(datetime.DateLayout), catalog.Weekdays[int(now.Weekday())], b.dates.Location().String())
	if caller.HasStore() {
		name := caller.StoreName
		if name == "" {
			name = caller.StoreID
		}
		fmt.Fprintf(&sb, "- 사용자 기본 매장: %s (store_id %s). 매장을 말하지 않으면 이 매장 기준으로 조회한다.\n", name, caller.StoreID)
	} else {
		sb.WriteString("- 사용자 기본 매장: 없음. 매장을 말하지 않으면 전체 매장 기준으로 조회한다.\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## 기간 표현\n")
	sb.WriteString("- date_range에는 today, yesterday, this_week, last_week, this_month, last_month, custom 중 하나를 넣는다.\n")
	sb.WriteString("- 주는 월요일에 시작한다. \"지난주\"는 last_week, \"이번 달\"은 this_month로 옮긴다.\n")
	sb.WriteString("- 특정 날짜나 구간은 custom과 start_date/end_date(YYYY-MM-DD)로 지정한다. 연도가 없으면 올해로 본다.\n\n")

	sb.WriteString("## 작업 목록\n")
	for _, def := range b.catalog.List() {
		fmt.Fprintf(&sb, "- %s: %s\n", def.Name, def.Description)
	}
	sb.WriteString("- 서로 독립적인 조회는 한 번에 여러 작업을 호출해도 된다.\n")
	sb.WriteString("- 기록 작업(출퇴근 등록)은 사용자가 분명히 요청한 경우에만 호출한다.\n\n")

	sb.WriteString("## 용어\n")
	fmt.Fprintf(&sb, "- 고용 형태: %s\n", strings.Join(withoutAll(catalog.ContractClassifications), ", "))
	fmt.Fprintf(&sb, "- 재직 상태: %s\n", strings.Join(withoutAll(catalog.EmploymentStatuses), ", "))
	fmt.Fprintf(&sb, "- 거래처 유형: %s\n", strings.Join(withoutAll(catalog.PartnerTypes), ", "))
	if vocab := b.vocabulary.Text(); vocab != "" {
		sb.WriteString(vocab)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString(b.policy.Instructions())
	return sb.String()
}

// ApologyInstruction is appended to the system prompt of the forced final
// call once the round budget is spent.
func (b *PromptBuilder) ApologyInstruction() string {
	return fmt.Sprintf("\n## 중단 지시\n작업 호출 한도에 도달했다. 더 이상 작업을 호출하지 말고 다음 문장으로만 답한다: %s\n", b.policy.ApologyMessage)
}

// ClosingInstruction is appended to the system prompt of the closing call
// after an error or unsupported result.
func (b *PromptBuilder) ClosingInstruction() string {
	return fmt.Sprintf("\n## 종료 지시\n작업 결과에 오류 또는 처리 불가 표시가 있다. 작업을 더 호출하지 말고 다음 문장으로만 답한다: %s\n", b.policy.RefusalMessage)
}

func withoutAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != catalog.AllValue {
			out = append(out, v)
		}
	}
	return out
}
