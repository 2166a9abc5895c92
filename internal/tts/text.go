package tts

import (
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

var (
	tokenizerOnce sync.Once
	tokenizer     *sentences.DefaultSentenceTokenizer
	tokenizerErr  error
)

func sentenceTokenizer() (*sentences.DefaultSentenceTokenizer, error) {
	tokenizerOnce.Do(func() {
		tokenizer, tokenizerErr = english.NewSentenceTokenizer(nil)
	})
	return tokenizer, tokenizerErr
}

// Speakable flattens markdown into plain text. Code blocks, raw HTML and
// table delimiters are dropped; list items and headings become sentences.
func Speakable(src string) string {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				sb.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					sb.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				sb.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				sb.Write(node.Label(source))
			}
		case *east.TableCell:
			if !entering {
				current := strings.TrimRight(sb.String(), " ")
				sb.Reset()
				sb.WriteString(current)
				sb.WriteString(", ")
			}
		}
		if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
			if _, cell := n.(*east.TableCell); !cell {
				terminate(&sb)
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(sb.String()), " ")
}

// terminate ends a block so it is read as its own sentence
func terminate(sb *strings.Builder) {
	current := strings.TrimRight(sb.String(), " ,")
	if current == "" {
		return
	}
	sb.Reset()
	sb.WriteString(current)
	switch current[len(current)-1] {
	case '.', '!', '?', ':', ';':
		sb.WriteByte(' ')
	default:
		sb.WriteString(". ")
	}
}

// Segment splits text on sentence boundaries into pieces of at most
// maxChars where possible. A single sentence longer than maxChars is kept
// whole.
func Segment(s string, maxChars int) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if maxChars <= 0 || len(s) <= maxChars {
		return []string{s}
	}

	tok, err := sentenceTokenizer()
	if err != nil {
		return []string{s}
	}

	var segments []string
	var current strings.Builder
	for _, sentence := range tok.Tokenize(s) {
		part := strings.TrimSpace(sentence.Text)
		if part == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(part) > maxChars {
			segments = append(segments, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(part)
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}
