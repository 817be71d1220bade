// Package vision converts images in user messages into concise text
// descriptions via a vision model sub-call, so the main conversation stays
// text-only and cheap.
package vision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/freshalert/freshagent/internal/config"
	"github.com/freshalert/freshagent/internal/llm"
	"github.com/freshalert/freshagent/internal/prompts"
	"github.com/freshalert/freshagent/internal/turn"
)

// maxErrorChars bounds the failure reason embedded in a placeholder.
const maxErrorChars = 100

// Preprocessor distills the images of a user turn into one combined text
// description. It is stateless; callers cache results per turn ID so a turn
// is never analyzed twice.
type Preprocessor struct {
	client llm.Client
	model  string
	cfg    config.VisionConfig
	logger *slog.Logger
}

// NewPreprocessor creates an image preprocessor using the given provider
// client and vision model.
func NewPreprocessor(client llm.Client, model string, cfg config.VisionConfig, logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{
		client: client,
		model:  model,
		cfg:    cfg,
		logger: logger.With("component", "vision"),
	}
}

// Describe analyzes every image in the turn and returns the combined
// description: the user's question, one analysis block per image, and a
// note when multiple images were present. Per-image failures degrade to an
// inline placeholder rather than an error; Describe itself never fails.
// Returns "" when the turn carries no images.
func (p *Preprocessor) Describe(ctx context.Context, t *turn.Turn) string {
	images := t.Images()
	if len(images) == 0 {
		return ""
	}

	userText := t.TextContent()
	descriptions := make([]string, len(images))

	// Analyze images concurrently; order is preserved by index.
	g, gctx := errgroup.WithContext(ctx)
	for i, img := range images {
		g.Go(func() error {
			desc, err := p.describeOne(gctx, img, userText)
			if err != nil {
				p.logger.Warn("image analysis failed", "image", i+1, "error", err)
				descriptions[i] = fmt.Sprintf("[Image %d]: Could not process image - %s", i+1, truncateError(err))
				return nil
			}
			descriptions[i] = fmt.Sprintf("[Image %d Analysis]:\n%s", i+1, desc)
			return nil
		})
	}
	g.Wait() // workers never return errors

	parts := make([]string, 0, len(descriptions)+2)
	if userText != "" {
		parts = append(parts, "User's Question: "+userText)
	}
	parts = append(parts, descriptions...)
	if len(images) > 1 {
		parts = append(parts, fmt.Sprintf("\n(Note: %d images were analyzed. Use the extracted information above to help the user.)", len(images)))
	}

	return strings.Join(parts, "\n\n")
}

// describeOne sends a single image to the vision model.
func (p *Preprocessor) describeOne(ctx context.Context, ref turn.ImageRef, userText string) (string, error) {
	if timeout := time.Duration(p.cfg.TimeoutSec) * time.Second; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	payload := llm.ImagePayload{MediaType: ref.MediaType, Data: ref.Data, URL: ref.URL}

	// Shrink raw image bytes before upload. A failed optimization is not
	// fatal; the original bytes go out instead.
	if p.cfg.Optimize && len(ref.Data) > 0 {
		optimized, err := Optimize(ref.Data, p.cfg.MaxDimension, p.cfg.JPEGQuality)
		if err != nil {
			p.logger.Warn("could not optimize image, using original", "error", err)
		} else {
			p.logger.Debug("image optimized", "before", len(ref.Data), "after", len(optimized))
			payload = llm.ImagePayload{MediaType: "image/jpeg", Data: optimized}
		}
	}

	messages := []llm.Message{{
		Role:    "user",
		Content: prompts.ImageExtractionPrompt(userText),
		Images:  []llm.ImagePayload{payload},
	}}

	resp, err := p.client.Chat(ctx, p.model, messages, nil)
	if err != nil {
		return "", err
	}
	if resp.Message.Content == "" {
		return "", fmt.Errorf("vision model returned empty description")
	}
	return resp.Message.Content, nil
}

// truncateError bounds an error message for inline placeholders.
func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > maxErrorChars {
		return msg[:maxErrorChars]
	}
	return msg
}
