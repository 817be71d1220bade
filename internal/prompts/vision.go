package prompts

import "fmt"

// imageExtractionTemplate is the prompt sent to the vision model to distill
// one image into a short food-focused description. The single format verb
// is the user's accompanying question.
const imageExtractionTemplate = `Analyze this image and extract ONLY the following information:
1. Food items visible (name, quantity if visible)
2. Product barcode/QR-code if visible
3. Expiration dates, best before dates, or manufacture dates if visible
4. Packaging condition (sealed/opened/damaged)
5. Any visible text on packaging (brand, product name)

Be concise and factual. Format as a bulleted list. Maximum 100 words.

User's question: %s`

// defaultImageQuestion is used when the user sent an image with no text.
const defaultImageQuestion = "Please analyze this food image."

// ImageExtractionPrompt returns the vision prompt for a single image. The
// user's message text gives the model context for what to look for; when
// empty, a generic analysis request is substituted.
func ImageExtractionPrompt(userText string) string {
	if userText == "" {
		userText = defaultImageQuestion
	}
	return fmt.Sprintf(imageExtractionTemplate, userText)
}
