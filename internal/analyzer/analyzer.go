package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"salesbot/internal/interest"
	"salesbot/internal/session"
)

const systemPrompt = `Eres un analista de conversaciones de venta.
Identifica los productos del catálogo que el cliente menciona y qué tanto interés muestra en cada uno.
Responde únicamente con un arreglo JSON de objetos con esta forma:
[{"nombre": "<nombre exacto del producto>", "nivel_interes": "bajo" | "medio" | "alto"}]
Usa solamente nombres que aparezcan en el catálogo. Si el cliente no menciona ningún producto del catálogo, responde [].`

// Client extracts interest signals from conversation text using a
// chat model.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// NewClient creates an analyzer Client.
func NewClient(apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		api:     openai.NewClient(apiKey),
		model:   model,
		timeout: timeout,
	}
}

// AnalyzeMessage extracts product interest signals from one customer
// message. products maps active catalog product names to ids; model
// output naming anything else is dropped.
func (c *Client) AnalyzeMessage(ctx context.Context, message string, products map[string]int64) ([]interest.Signal, error) {
	prompt := fmt.Sprintf("CATÁLOGO DE PRODUCTOS:\n%s\nMENSAJE DEL CLIENTE:\n%s",
		productList(products), message)
	return c.analyze(ctx, prompt, products)
}

// AnalyzeTranscript extracts product interest signals from a whole
// conversation transcript.
func (c *Client) AnalyzeTranscript(ctx context.Context, transcript []session.Message, products map[string]int64) ([]interest.Signal, error) {
	var b strings.Builder
	for _, msg := range transcript {
		fmt.Fprintf(&b, "%s: %s\n", speaker(msg.Sender), msg.Content)
	}
	prompt := fmt.Sprintf("CATÁLOGO DE PRODUCTOS:\n%s\nCONVERSACIÓN:\n%s",
		productList(products), b.String())
	return c.analyze(ctx, prompt, products)
}

func (c *Client) analyze(ctx context.Context, prompt string, products map[string]int64) ([]interest.Signal, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(cctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	return parseSignals(resp.Choices[0].Message.Content, products)
}

// parseSignals decodes the model's JSON output into product interest
// signals. Names outside the catalog are dropped; invalid level tokens
// are passed through so the interest store counts them as rejected.
func parseSignals(raw string, products map[string]int64) ([]interest.Signal, error) {
	cleaned := stripCodeFence(raw)

	var items []struct {
		Nombre string `json:"nombre"`
		Nivel  string `json:"nivel_interes"`
	}
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, fmt.Errorf("parsing analyzer output: %w", err)
	}

	var signals []interest.Signal
	for _, item := range items {
		id, ok := products[strings.TrimSpace(item.Nombre)]
		if !ok {
			continue
		}
		sig := interest.Signal{Kind: interest.KindProduct, EntityID: id}
		if level, err := interest.ParseLevel(item.Nivel); err == nil {
			sig.Level = level
		} else {
			sig.Level = interest.Level(strings.ToLower(strings.TrimSpace(item.Nivel)))
		}
		signals = append(signals, sig)
	}
	return signals, nil
}

// stripCodeFence removes a surrounding markdown code fence, which chat
// models add even when told not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func productList(products map[string]int64) string {
	names := make([]string, 0, len(products))
	for name := range products {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return b.String()
}

func speaker(sender string) string {
	if sender == "agent" {
		return "Vendedor"
	}
	return "Cliente"
}
