// Package generate asks a Gemini model to write an exam document.
package generate

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/exam"
	"google.golang.org/genai"
)

// MaxAttachmentSize is the largest attachment accepted, in bytes.
const MaxAttachmentSize = 4 * 1024 * 1024

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-1.5-flash"

const systemInstruction = `You are an expert exam creator. Generate a JSON exam strictly following the provided schema.
The user will provide a topic or description. Ensure valid JSON output. Do not wrap in markdown code blocks.`

//go:embed schema.json
var defaultSchema []byte

// ErrAttachmentTooLarge is returned for attachments over MaxAttachmentSize.
var ErrAttachmentTooLarge = errors.New("attachment too large")

// Model is the part of the genai client used to generate content.
type Model interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Attachment is a file sent to the model alongside the prompt.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Request describes the exam to generate.
type Request struct {
	Prompt      string
	Attachments []Attachment
}

// Config configures a Client.
type Config struct {
	APIKey     string
	Model      string
	SchemaPath string // empty uses the built-in schema template
}

// Client generates exam documents.
type Client struct {
	models Model
	model  string
	schema []byte
	logger *slog.Logger
}

// New creates a Client backed by the Gemini API.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key is required", domain.ErrValidation)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", domain.ErrCollaborator, err)
	}
	return NewWithModel(client.Models, cfg, logger)
}

// NewWithModel creates a Client that sends requests to models.
func NewWithModel(models Model, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	schema, err := loadSchema(cfg.SchemaPath)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{models: models, model: model, schema: schema, logger: logger}, nil
}

func loadSchema(path string) ([]byte, error) {
	if path == "" {
		return defaultSchema, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema template: %w", err)
	}
	return data, nil
}

// Generate asks the model for an exam and returns the validated document.
func (c *Client) Generate(ctx context.Context, req Request) (domain.Document, error) {
	if strings.TrimSpace(req.Prompt) == "" && len(req.Attachments) == 0 {
		return domain.Document{}, fmt.Errorf("%w: a prompt or an attachment is required", domain.ErrValidation)
	}

	parts := []*genai.Part{{Text: c.prompt(req.Prompt)}}
	for _, a := range req.Attachments {
		if len(a.Data) > MaxAttachmentSize {
			return domain.Document{}, fmt.Errorf("%w: %s is %d bytes, max %d", ErrAttachmentTooLarge, a.Name, len(a.Data), MaxAttachmentSize)
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: a.MIMEType, Data: a.Data}})
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		ResponseMIMEType:  "application/json",
	}

	c.logger.InfoContext(ctx, "Requesting exam generation", "model", c.model, "attachments", len(req.Attachments))
	resp, err := c.models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %v", domain.ErrCollaborator, err)
	}

	text, err := responseText(resp)
	if err != nil {
		return domain.Document{}, err
	}

	doc, err := exam.Decode(strings.NewReader(stripFences(text)))
	if err != nil {
		return domain.Document{}, fmt.Errorf("generated exam is invalid: %w", err)
	}
	c.logger.InfoContext(ctx, "Exam generated", "title", doc.Title, "questions", len(doc.Questions))
	return doc, nil
}

func (c *Client) prompt(topic string) string {
	schema := c.schema
	var compact bytes.Buffer
	if err := json.Compact(&compact, schema); err == nil {
		schema = compact.Bytes()
	}
	return fmt.Sprintf("Generate a valid JSON exam based on this schema: %s\n\nTopic/Description: %s", schema, topic)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", domain.ErrCollaborator)
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: content blocked by safety filters", domain.ErrCollaborator)
	}
	if cand.Content == nil {
		return "", fmt.Errorf("%w: no content generated", domain.ErrCollaborator)
	}
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: no content generated", domain.ErrCollaborator)
	}
	return sb.String(), nil
}

// stripFences removes Markdown code fences some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
