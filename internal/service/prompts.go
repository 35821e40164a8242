package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"novel-fork/internal/interfaces"
	"novel-fork/internal/models"
	"novel-fork/pkg/textstats"

	"go.uber.org/zap"
)

const (
	chapterSystemPrompt = `Ты соавтор интерактивной новеллы. Продолжи историю следующей главой.
Пиши на языке исходного текста, в том же стиле и от того же лица.
Начни ответ с заголовка главы в формате "# Заголовок", затем текст главы в Markdown.`

	directionsSystemPrompt = `Ты помогаешь читателю выбрать, как продолжится история.
Предложи ровно три разных направления развития сюжета.
Ответь только JSON-массивом вида [{"label": "...", "description": "..."}].`

	// Старые главы, не влезающие в бюджет целиком, заменяются началом текста.
	excerptRunes = 300
)

// storyContext - всё, что известно о форке к моменту генерации.
type storyContext struct {
	Story    *models.Story
	Authored []models.StoryChapter
	Commits  []models.Commit
	Previews []models.PreviewChapter
}

// nextChapterNumber - номер следующей главы в сквозной нумерации форка.
func (c storyContext) nextChapterNumber() int {
	return len(c.Authored) + len(c.Commits) + len(c.Previews) + 1
}

type contextPart struct {
	heading string
	body    string
}

// PromptBuilder собирает промпты генератора и укладывает контекст истории в бюджет токенов.
type PromptBuilder struct {
	deps   Deps
	budget int
	logger *zap.Logger
}

func NewPromptBuilder(deps Deps, opts Options, logger *zap.Logger) *PromptBuilder {
	opts = opts.withDefaults()
	return &PromptBuilder{deps: deps, budget: opts.ContextTokenBudget, logger: logger.Named("PromptBuilder")}
}

func (b *PromptBuilder) countTokens(text string) int {
	if b.deps.Tokens != nil {
		return b.deps.Tokens.CountTokens(text)
	}
	return utf8.RuneCountInString(text)/4 + 1
}

// loadContext читает историю форка. withPreviews=false используется для коммитов:
// предпросмотр не является частью канона форка.
func (b *PromptBuilder) loadContext(ctx context.Context, q interfaces.DBTX, fork *models.Fork, withPreviews bool) (*storyContext, error) {
	story, err := b.deps.Stories.GetByID(ctx, q, fork.StoryID)
	if err != nil {
		return nil, fmt.Errorf("load story: %w", err)
	}
	authored, err := b.deps.Stories.ListAuthoredChapters(ctx, q, fork.StoryID)
	if err != nil {
		return nil, fmt.Errorf("load authored chapters: %w", err)
	}
	commits, err := b.deps.Commits.ListByFork(ctx, q, fork.ID)
	if err != nil {
		return nil, fmt.Errorf("load commits: %w", err)
	}
	sc := &storyContext{Story: story, Authored: authored, Commits: commits}
	if withPreviews {
		previews, err := b.deps.Previews.List(ctx, fork.ID)
		if err != nil {
			return nil, fmt.Errorf("load preview buffer: %w", err)
		}
		sc.Previews = previews
	}
	return sc, nil
}

// renderHistory складывает главы от новых к старым, пока хватает бюджета.
func (b *PromptBuilder) renderHistory(sc *storyContext, reserved int) string {
	parts := make([]contextPart, 0, len(sc.Authored)+len(sc.Commits)+len(sc.Previews))
	number := 0
	for _, ch := range sc.Authored {
		number++
		parts = append(parts, contextPart{heading: fmt.Sprintf("Глава %d. %s", number, ch.Title), body: ch.ContentMarkdown})
	}
	for _, c := range sc.Commits {
		number++
		parts = append(parts, contextPart{heading: fmt.Sprintf("Глава %d. %s", number, c.Title), body: c.ContentMarkdown})
	}
	for _, p := range sc.Previews {
		body := p.ContentMarkdown
		if p.Summary != nil && *p.Summary != "" {
			body = *p.Summary
		}
		parts = append(parts, contextPart{heading: fmt.Sprintf("Глава %d. %s", p.ChapterNumber, p.Title), body: body})
	}

	remaining := b.budget - reserved
	picked := make([]string, 0, len(parts))
	for i := len(parts) - 1; i >= 0 && remaining > 0; i-- {
		full := parts[i].heading + "\n" + parts[i].body
		if cost := b.countTokens(full); cost <= remaining {
			picked = append(picked, full)
			remaining -= cost
			continue
		}
		excerpt := parts[i].heading + "\n" + textstats.Truncate(parts[i].body, excerptRunes) + "…"
		cost := b.countTokens(excerpt)
		if cost > remaining {
			break
		}
		picked = append(picked, excerpt)
		remaining -= cost
	}

	var sb strings.Builder
	for i := len(picked) - 1; i >= 0; i-- {
		sb.WriteString(picked[i])
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func (b *PromptBuilder) header(story *models.Story) string {
	var sb strings.Builder
	sb.WriteString("История: ")
	sb.WriteString(story.Title)
	sb.WriteString("\n")
	if story.Description != nil && *story.Description != "" {
		sb.WriteString("Описание: ")
		sb.WriteString(*story.Description)
		sb.WriteString("\n")
	}
	return sb.String()
}

// chapterPrompt собирает запрос на следующую главу. instruction - выбранный вариант
// или свободное направление читателя.
func (b *PromptBuilder) chapterPrompt(sc *storyContext, instruction string, wordCount int) string {
	head := b.header(sc.Story)
	tail := fmt.Sprintf("\nНапиши главу %d (примерно %d слов).\n", sc.nextChapterNumber(), wordCount)
	if instruction != "" {
		tail += "Направление продолжения: " + instruction + "\n"
	}
	reserved := b.countTokens(chapterSystemPrompt) + b.countTokens(head) + b.countTokens(tail)
	history := b.renderHistory(sc, reserved)
	if history == "" {
		b.logger.Warn("Story context does not fit into token budget", zap.Int64("storyID", sc.Story.ID), zap.Int("budget", b.budget))
	}
	return head + "\n" + history + tail
}

// optionInstruction описывает выбор читателя в точке ветвления.
func optionInstruction(option *models.Option) string {
	if option == nil {
		return ""
	}
	instruction := option.Label
	if option.PlotHint != nil && *option.PlotHint != "" {
		instruction += ". " + *option.PlotHint
	}
	if option.InfluenceNotes != nil && *option.InfluenceNotes != "" {
		instruction += ". Учитывай: " + *option.InfluenceNotes
	}
	return instruction
}

func (b *PromptBuilder) directionsPrompt(sc *storyContext) string {
	head := b.header(sc.Story)
	tail := "\nПредложи три направления для следующей главы.\n"
	reserved := b.countTokens(directionsSystemPrompt) + b.countTokens(head) + b.countTokens(tail)
	return head + "\n" + b.renderHistory(sc, reserved) + tail
}

// splitTitle отделяет заголовок "# ..." от текста главы. Без заголовка
// используется fallback.
func splitTitle(markdown, fallback string) (string, string) {
	text := strings.TrimSpace(markdown)
	firstLine, rest, _ := strings.Cut(text, "\n")
	if strings.HasPrefix(firstLine, "#") {
		title := strings.TrimSpace(strings.TrimLeft(firstLine, "#"))
		if title != "" {
			return title, strings.TrimSpace(rest)
		}
	}
	return fallback, text
}
