package synth

import (
	"fmt"
	"strings"
	"time"

	"github.com/higress-group/newsrag/analysis"
	"github.com/higress-group/newsrag/search"
	"github.com/higress-group/newsrag/temporal"
)

const analystRole = `당신은 정확한 사실에 기반해 답하는 한국 경제 뉴스 전문 분석가입니다.
주어진 뉴스 정보만 사용해 질문에 답하세요.`

const answerRules = `[답변 규칙]
1. 모든 사실 진술에는 구체적인 날짜(YYYY년 MM월 DD일)를 함께 적으세요.
2. 출처는 문장 끝에 [1], [2] 형식으로 표기하고 아래 출처 목록의 번호만 사용하세요.
3. 50단어 이상 800단어 이하로, 2개 이상의 문단으로 작성하세요.
4. 존댓말 보도체로 작성하고 추측은 피하세요.
5. 마크다운 굵은 글씨(**), 제목(#, ##), 이모지를 사용하지 마세요.`

// PromptInput is everything the prompt builder needs for one answer.
type PromptInput struct {
	Query           string
	Category        analysis.Category
	Sources         []search.SourceRecord
	ExternalContent string
	Exemplars       []Exemplar
	History         []Turn
	Summary         string
	Now             time.Time
}

// Turn is a prior conversation message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildPrompt renders the generation prompt. Sources are listed by their
// Index so that citation numbers match positions.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString(analystRole)
	b.WriteString("\n\n")
	b.WriteString(temporal.Context(in.Now))
	b.WriteString("\n")
	b.WriteString(answerRules)
	b.WriteString("\n\n")

	for i, e := range in.Exemplars {
		fmt.Fprintf(&b, "예시 %d:\n질문: %s\n주어진 정보: %s\n답변: %s\n\n", i+1, e.Query, e.Sources, e.Answer)
	}

	if in.Summary != "" || len(in.History) > 0 {
		b.WriteString("[이전 대화]\n")
		if in.Summary != "" {
			fmt.Fprintf(&b, "요약: %s\n", in.Summary)
		}
		for _, t := range in.History {
			fmt.Fprintf(&b, "%s: %s\n", roleLabel(t.Role), t.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "질문: %s\n", in.Query)
	fmt.Fprintf(&b, "분야: %s\n\n", in.Category.Label())

	if in.ExternalContent != "" {
		b.WriteString("[최신 웹 검색 요약]\n")
		b.WriteString(strings.TrimSpace(in.ExternalContent))
		b.WriteString("\n\n")
	}

	b.WriteString("[출처 목록]\n")
	if len(in.Sources) == 0 {
		b.WriteString("제공된 출처가 없습니다. 확인된 정보가 없다고 답하세요.\n")
	}
	for _, s := range in.Sources {
		fmt.Fprintf(&b, "[%d] %s (발행일: %s", s.Index, s.Title, publishedLabel(s))
		if s.Domain != "" {
			fmt.Fprintf(&b, ", %s", s.Domain)
		}
		b.WriteString(")\n")
		if s.Snippet != "" {
			fmt.Fprintf(&b, "    %s\n", s.Snippet)
		}
	}
	b.WriteString("\n답변:")
	return b.String()
}

func publishedLabel(s search.SourceRecord) string {
	if s.PublishedAt == nil {
		return "발행일 미상"
	}
	return s.PublishedAt.Format("2006년 01월 02일")
}

func roleLabel(role string) string {
	switch role {
	case "user":
		return "사용자"
	case "assistant":
		return "어시스턴트"
	default:
		return role
	}
}
