package generator

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/layer-3/converse/core"
	"github.com/layer-3/converse/ports"
)

const (
	defaultChatModel  = "gemini-1.5-flash-latest"
	defaultTitleModel = "gemini-1.5-flash-latest"

	chatSystemInstruction = "The following is a friendly conversation between a human and an AI. " +
		"The AI is talkative and provides lots of specific details from its context. " +
		"If the AI does not know the answer to a question, it truthfully says it does not know."

	titleSystemInstruction = "You are a helpful assistant that generates concise titles for chat conversations. " +
		"The title should be 3-5 words maximum. Just return the title itself, nothing else."
)

// Gemini implements the Generator interface against the Google generative
// AI API, streaming candidate chunks as they arrive.
type Gemini struct {
	client    *genai.Client
	chatModel string
}

// NewGemini creates a new Gemini generator.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create genai client")
	}
	return &Gemini{client: client, chatModel: defaultChatModel}, nil
}

var _ ports.Generator = (*Gemini)(nil)

func (g *Gemini) Close() error {
	return g.client.Close()
}

// Generate streams a reply to prompt given the prior conversation. Every
// received chunk is forwarded through onToken before the call returns.
func (g *Gemini) Generate(ctx context.Context, history []core.Message, prompt string, onToken func(string)) (string, int64, error) {
	model := g.client.GenerativeModel(g.chatModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}

	chat := model.StartChat()
	chat.History = toGenaiHistory(history)

	iter := chat.SendMessageStream(ctx, genai.Text(prompt))

	var reply strings.Builder
	var usage int64
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", usage, errors.Wrap(err, "gemini stream failed")
		}

		for _, part := range candidateParts(resp) {
			if txt, ok := part.(genai.Text); ok {
				reply.WriteString(string(txt))
				onToken(string(txt))
			}
		}
		if resp.UsageMetadata != nil {
			usage = int64(resp.UsageMetadata.TotalTokenCount)
		}
	}

	if reply.Len() == 0 {
		log.Warn().Msg("gemini returned an empty reply")
	}

	return reply.String(), usage, nil
}

// Title produces a short conversation title from the opening message.
func (g *Gemini) Title(ctx context.Context, basis string) (string, error) {
	model := g.client.GenerativeModel(defaultTitleModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(titleSystemInstruction)},
	}

	temp := float32(0.3)
	maxTokens := int32(20)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	resp, err := model.GenerateContent(ctx, genai.Text(
		"Generate a very concise title (3-5 words maximum) for a conversation that starts with: \""+basis+"\"."))
	if err != nil {
		return "", errors.Wrap(err, "gemini title generation failed")
	}

	var title strings.Builder
	for _, part := range candidateParts(resp) {
		if txt, ok := part.(genai.Text); ok {
			title.WriteString(string(txt))
		}
	}
	if title.Len() == 0 {
		return "", errors.New("gemini generated an empty title")
	}

	return strings.Trim(title.String(), "\"'\n\r\t ."), nil
}

func candidateParts(resp *genai.GenerateContentResponse) []genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}

func toGenaiHistory(history []core.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.Role == core.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Text)},
		})
	}
	return contents
}
