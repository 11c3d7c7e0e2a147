package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"shaneshark.com/portfolio/internal/apperr"
	"shaneshark.com/portfolio/internal/llm"
)

const (
	insightFallback  = "unable to generate a hint right now, please retry"
	codeReviewEmpty  = "no analysis generated, please retry"
	insightSystem    = "You are a concise Chinese writing assistant."
	codeReviewSystem = "你是一个资深的全栈代码审查员，请用简体中文返回分析结果。输出格式简洁，包含：\n" +
		"1) 代码做了什么（<=50字）；\n" +
		"2) 可能的 Bug 或边界风险（条目列出）；\n" +
		"3) 可执行的优化建议（条目列出，偏工程实践与性能/安全）；\n" +
		"4) 如果存在严重问题，给出修复方向。\n" +
		"不要使用 markdown 代码块，直接返回可读文本。"
)

// InsightRequest asks for a short coaching note on one result card
type InsightRequest struct {
	CardTitle string `json:"cardTitle"`
	Focus     string `json:"focus"`
	Input     Input  `json:"input"`
	Result    Result `json:"result"`
}

type Insight struct {
	Summary string   `json:"summary"`
	Actions []string `json:"actions"`
}

// Insight returns a one-line summary and actions. Replies without a JSON summary become the summary.
func (s *Service) Insight(ctx context.Context, req InsightRequest) (*Insight, error) {
	text, err := s.llm.Complete(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: insightSystem},
			{Role: llm.RoleUser, Content: insightPrompt(req)},
		},
		Temperature: 0.35,
		TopP:        0.9,
	})
	if err != nil && !errors.Is(err, llm.ErrEmptyCompletion) {
		return nil, upstreamError("insight failed", err)
	}

	var out Insight
	if err := json.Unmarshal([]byte(ExtractJSON(text)), &out); err != nil || blank(out.Summary) {
		out = Insight{Summary: strings.TrimSpace(text)}
		if out.Summary == "" {
			out.Summary = insightFallback
		}
	}
	if out.Actions == nil {
		out.Actions = []string{}
	}
	return &out, nil
}

func insightPrompt(req InsightRequest) string {
	missing := strings.Join(req.Result.MissingKeyPoints, "；")
	if missing == "" {
		missing = "无"
	}
	return strings.Join([]string{
		"你是一个面试教练，基于用户的练习结果卡片给出简短提示。",
		"卡片标题: " + req.CardTitle,
		"关注点: " + req.Focus,
		"主题: " + req.Input.Topic,
		"标准答案: " + req.Input.StandardAnswer,
		"转写: " + req.Result.Transcription,
		fmt.Sprintf("准确度: %d, 完整度: %d", req.Result.AccuracyScore, req.Result.CompletenessScore),
		"缺失要点: " + missing,
		"AI 反馈: " + req.Result.ConstructiveFeedback,
		"改进建议: " + req.Result.ImprovedAnswerSuggestion,
		"输出 JSON: { summary: '一句总览（<=80字）', actions: ['可执行建议1','可执行建议2'] }，不要使用 markdown，不要代码块。",
	}, "\n")
}

// CodeReview asks the model for a plain-text review of code
func (s *Service) CodeReview(ctx context.Context, code, language string) (string, error) {
	if blank(code) {
		return "", apperr.Params("code is required")
	}

	text, err := s.llm.Complete(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: codeReviewSystem},
			{Role: llm.RoleUser, Content: fmt.Sprintf("语言: %s\n请审阅以下代码并给出反馈：\n%s", language, code)},
		},
		Temperature: 0.35,
		TopP:        0.9,
	})
	if errors.Is(err, llm.ErrEmptyCompletion) {
		return codeReviewEmpty, nil
	}
	if err != nil {
		return "", upstreamError("code review failed", err)
	}
	if text = strings.TrimSpace(text); text == "" {
		return codeReviewEmpty, nil
	}
	return text, nil
}
