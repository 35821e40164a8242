// Package textstats считает объём markdown-текста по видимым словам,
// без разметки, ссылок и HTML.
package textstats

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// WordCount возвращает количество слов в отображаемом тексте markdown-документа.
func WordCount(markdown string) int {
	if strings.TrimSpace(markdown) == "" {
		return 0
	}
	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	words := 0
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			words += len(strings.Fields(string(node.Segment.Value(source))))
		case *ast.String:
			words += len(strings.Fields(string(node.Value)))
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				words += len(strings.Fields(string(seg.Value(source))))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return words
}

// Truncate обрезает текст до limit рун, не разрывая многобайтовые символы.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
