package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"ReelRelay/internal/config"
	"ReelRelay/internal/domain"
	"ReelRelay/internal/ports"
)

const (
	maxTitleRunes       = 100
	maxDescriptionRunes = 2000
	callToAction        = "📱 Follow for more amazing content!"
)

var jsonObjectExpr = regexp.MustCompile(`\{[\s\S]*\}`)

// ChatGPTGenerator implements ports.ContentGenerator backed by an
// OpenAI-compatible chat completions API.
type ChatGPTGenerator struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
	logger       zerolog.Logger
}

var _ ports.ContentGenerator = (*ChatGPTGenerator)(nil)

// NewChatGPTGenerator builds a generator from configuration. Without an API
// key every call uses the fallback templates.
func NewChatGPTGenerator(cfg config.ChatGPTConfig, logger zerolog.Logger) *ChatGPTGenerator {
	return &ChatGPTGenerator{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		logger: logger,
	}
}

// Generate never fails: any API or parsing problem yields template content.
func (g *ChatGPTGenerator) Generate(ctx context.Context, video domain.Video) domain.GeneratedContent {
	if g.apiKey == "" || g.endpoint == "" || g.model == "" {
		return fallbackContent(video)
	}

	content, err := g.complete(ctx, video)
	if err != nil {
		g.logger.Warn().Err(err).Str("video_id", video.ID).Msg("content generation failed, using fallback")
		return fallbackContent(video)
	}
	g.logger.Debug().Str("video_id", video.ID).Msg("content generated")
	return content
}

type generatedPayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
}

func (g *ChatGPTGenerator) complete(ctx context.Context, video domain.Video) (domain.GeneratedContent, error) {
	body, err := json.Marshal(map[string]any{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "system", "content": safePrompt(g.systemPrompt)},
			{"role": "user", "content": buildPrompt(video)},
		},
	})
	if err != nil {
		return domain.GeneratedContent{}, fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.GeneratedContent{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return domain.GeneratedContent{}, fmt.Errorf("request completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.GeneratedContent{}, fmt.Errorf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return domain.GeneratedContent{}, fmt.Errorf("decode completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return domain.GeneratedContent{}, errors.New("completion has no choices")
	}

	return parseGenerated(completion.Choices[0].Message.Content)
}

// parseGenerated extracts the JSON object from the model answer and formats
// the final title and description.
func parseGenerated(text string) (domain.GeneratedContent, error) {
	raw := jsonObjectExpr.FindString(text)
	if raw == "" {
		return domain.GeneratedContent{}, errors.New("no json object in completion")
	}

	var payload generatedPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return domain.GeneratedContent{}, fmt.Errorf("parse completion json: %w", err)
	}
	if strings.TrimSpace(payload.Title) == "" || strings.TrimSpace(payload.Description) == "" {
		return domain.GeneratedContent{}, errors.New("completion is missing title or description")
	}

	tags := make([]string, 0, len(payload.Hashtags))
	for _, tag := range payload.Hashtags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		tags = append(tags, tag)
	}

	description := payload.Description + "\n\n" + strings.Join(tags, " ") + "\n\n" + callToAction
	return domain.GeneratedContent{
		Title:       truncateRunes(payload.Title, maxTitleRunes),
		Description: truncateRunes(description, maxDescriptionRunes),
		Hashtags:    payload.Hashtags,
	}, nil
}

func buildPrompt(video domain.Video) string {
	text := video.Text
	if text == "" {
		text = "No description"
	}
	author := video.Author
	if author == "" {
		author = "Unknown"
	}
	tags := "None"
	if len(video.Hashtags) > 0 {
		tags = strings.Join(video.Hashtags, ", ")
	}

	var b strings.Builder
	b.WriteString("Create engaging, original content for a Facebook video post based on this short video.\n\n")
	b.WriteString("ORIGINAL VIDEO DATA:\n")
	fmt.Fprintf(&b, "- Description: %q\n", text)
	fmt.Fprintf(&b, "- Author: %s\n", author)
	fmt.Fprintf(&b, "- Hashtags: %s\n", tags)
	fmt.Fprintf(&b, "- Views: %s\n", humanize.Comma(video.Views))
	fmt.Fprintf(&b, "- Category hints: %s\n\n", categoryHints(video))
	b.WriteString("REQUIREMENTS:\n")
	b.WriteString("1. A new, original title of at most 100 characters. Do not copy the original.\n")
	b.WriteString("2. A new, original description of at most 500 characters with a call to action.\n")
	b.WriteString("3. 5-7 relevant Facebook hashtags.\n")
	b.WriteString("4. English, broad audience, curiosity-inducing title.\n\n")
	b.WriteString(`Respond only with JSON: {"title": "...", "description": "...", "hashtags": ["..."]}`)
	return b.String()
}

func categoryHints(video domain.Video) string {
	var hints []string
	if video.Music != "" {
		hints = append(hints, "Music: "+video.Music)
	}
	if len(video.Hashtags) > 0 {
		n := min(3, len(video.Hashtags))
		hints = append(hints, "Tags: "+strings.Join(video.Hashtags[:n], ", "))
	}
	if len(hints) == 0 {
		return "General entertainment"
	}
	return strings.Join(hints, "; ")
}

type template struct {
	title       string
	description string
}

var fallbackTemplates = []template{
	{"You Won't Believe What Happens Next! 🔥", "This is absolutely incredible! Watch till the end! 👀"},
	{"This Made My Entire Day! 😂", "Tag someone who needs to see this! 💯"},
	{"Wait For It... 😱", "The ending is EVERYTHING! Share with your friends! 🙌"},
	{"POV: When Things Get Real 🎬", "Can you relate? Drop a comment below! 👇"},
	{"This Is Going Viral For A Reason! 🚀", "Double tap if you agree! Share for more! ❤️"},
}

var fallbackHashtags = []string{"viral", "trending", "foryou", "fyp", "explore", "follow"}

// fallbackContent picks a template deterministically from the video ID so a
// retried item gets the same text.
func fallbackContent(video domain.Video) domain.GeneratedContent {
	sum := blake3.Sum256([]byte(video.ID))
	tpl := fallbackTemplates[int(sum[0])%len(fallbackTemplates)]

	tags := make([]string, len(fallbackHashtags))
	for i, tag := range fallbackHashtags {
		tags[i] = "#" + tag
	}

	return domain.GeneratedContent{
		Title:       tpl.title,
		Description: tpl.description + "\n\n" + strings.Join(tags, " ") + "\n\n" + callToAction,
		Hashtags:    append([]string(nil), fallbackHashtags...),
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a social media content expert writing original Facebook video posts."
	}
	return prompt
}
