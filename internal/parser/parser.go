// Package parser reads exams written in a plain-text Markdown format:
//
//	# Exam title
//	Q: What is the capital of France?
//	O: a) Paris
//	O: b) Lyon
//	A: a) Paris
//	C: **Paris** has been the capital since 508.
//	---
//
// Q starts a question, O adds one option, A holds the solution and C the
// explanation. Q, A and C blocks continue over following lines. A line of
// "---" or a new Q ends the question.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/studydeck/internal/domain"
)

const (
	questionPrefix = "Q:"
	optionPrefix   = "O:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
	tagsPrefix     = "Tags:"
	titlePrefix    = "# "
)

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingContext
)

// ParseFile reads an exam from the file at path. Without a title heading the
// file name is used as the title.
func ParseFile(path string) (domain.Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return domain.Document{}, err
	}
	defer file.Close()

	doc, err := Parse(file)
	if err != nil {
		return domain.Document{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// Parse reads an exam from r. Questions without a prompt are dropped; the
// returned document is not validated.
func Parse(r io.Reader) (domain.Document, error) {
	p := &docParser{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return domain.Document{}, err
	}
	p.finishQuestion()
	return p.doc, nil
}

type docParser struct {
	doc     domain.Document
	current domain.Question
	block   []string
	state   state
}

func (p *docParser) line(line string) {
	switch {
	case line == "---":
		p.finishQuestion()
		return
	case p.state == seeking && p.doc.Title == "" && strings.HasPrefix(line, titlePrefix):
		p.doc.Title = strings.TrimSpace(line[len(titlePrefix):])
		return
	case p.state == seeking && strings.HasPrefix(line, tagsPrefix):
		for _, t := range strings.Split(line[len(tagsPrefix):], ",") {
			if t = strings.TrimSpace(t); t != "" {
				p.doc.Tags = append(p.doc.Tags, t)
			}
		}
		return
	case strings.HasPrefix(line, questionPrefix):
		// A new question always starts a new card.
		p.finishQuestion()
		p.start(readingQuestion, line[len(questionPrefix):])
	case strings.HasPrefix(line, optionPrefix) && p.state != seeking:
		p.flush()
		// Options are single lines; text after one continues no block.
		p.current.Options = append(p.current.Options, strings.TrimSpace(line[len(optionPrefix):]))
	case strings.HasPrefix(line, answerPrefix) && p.state != seeking:
		p.flush()
		p.start(readingAnswer, line[len(answerPrefix):])
	case strings.HasPrefix(line, contextPrefix) && p.state != seeking:
		p.flush()
		p.start(readingContext, line[len(contextPrefix):])
	case p.state != seeking && p.block != nil:
		p.block = append(p.block, line)
	}
}

func (p *docParser) start(s state, content string) {
	p.state = s
	p.block = []string{strings.TrimPrefix(content, " ")}
}

// flush stores the open block in the field the current state names.
func (p *docParser) flush() {
	if p.block == nil {
		return
	}
	content := strings.TrimSpace(strings.Join(p.block, "\n"))
	switch p.state {
	case readingQuestion:
		p.current.Prompt = content
	case readingAnswer:
		if content != "" {
			p.current.Answer.Solution = domain.SingleSolution(content)
		}
	case readingContext:
		p.current.Answer.Explanation = content
	}
	p.block = nil
}

func (p *docParser) finishQuestion() {
	p.flush()
	if p.current.Prompt != "" {
		p.doc.Questions = append(p.doc.Questions, p.current)
	}
	p.current = domain.Question{}
	p.state = seeking
}
