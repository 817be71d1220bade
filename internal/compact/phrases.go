package compact

import (
	"fmt"
	"strings"
)

// callPhrases map tool names to natural-language narration for the
// summarizer. A transcript that reads "checked for expired products" keeps
// the summary model focused on what happened instead of on JSON arguments.
var callPhrases = map[string]func(args map[string]any) string{
	"get_user_products": func(args map[string]any) string {
		return "listed the user's tracked products"
	},
	"get_expired_products": func(args map[string]any) string {
		if d, ok := args["days"].(float64); ok && d > 0 {
			return fmt.Sprintf("checked for products expiring within %d days", int(d))
		}
		return "checked for expired products"
	},
	"search_product": func(args map[string]any) string {
		if q, ok := args["query"].(string); ok && q != "" {
			return fmt.Sprintf("searched the food database for %q", q)
		}
		return "searched the food database"
	},
	"find_recipes_by_ingredients": func(args map[string]any) string {
		if list := ingredientList(args["ingredients"]); list != "" {
			return fmt.Sprintf("looked for recipes using %s", list)
		}
		return "looked for recipes by ingredients"
	},
	"search_recipes": func(args map[string]any) string {
		if q, ok := args["query"].(string); ok && q != "" {
			return fmt.Sprintf("searched for %q recipes", q)
		}
		return "searched for recipes"
	},
	"get_recipe_information": func(args map[string]any) string {
		if id, ok := args["recipe_id"].(float64); ok {
			return fmt.Sprintf("fetched details for recipe %d", int(id))
		}
		return "fetched recipe details"
	},
}

// callPhrase narrates one tool invocation. Unknown tools fall back to a
// generic "used <name>" so narration never fails on new tools.
func callPhrase(name string, args map[string]any) string {
	if fn, ok := callPhrases[name]; ok {
		return fn(args)
	}
	return "used " + name
}

// resultPhrases map tool names to result narration, mirroring callPhrases.
// Every built-in tool writes a one-line summary before its detail lines,
// so the registered renderer narrates by headline. Tools without an entry
// fall back to plain truncation.
var resultPhrases = map[string]func(name, content string) string{
	"get_user_products":           headlinePhrase,
	"get_expired_products":        headlinePhrase,
	"search_product":              headlinePhrase,
	"find_recipes_by_ingredients": headlinePhrase,
	"search_recipes":              headlinePhrase,
	"get_recipe_information":      headlinePhrase,
}

// resultPhrase narrates one tool result, compressing large payloads so the
// summary prompt stays small.
func resultPhrase(name, content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return name + " returned nothing"
	}
	if fn, ok := resultPhrases[name]; ok {
		return fn(name, content)
	}
	if len(content) > 200 {
		return name + " returned data (truncated)"
	}
	if len(content) > 100 {
		return fmt.Sprintf("%s returned: %s...", name, content[:100])
	}
	return fmt.Sprintf("%s: %s", name, content)
}

// headlinePhrase narrates a structured result by its first line.
func headlinePhrase(name, content string) string {
	line, _, multi := strings.Cut(content, "\n")
	if len(line) > 100 {
		line = line[:100] + "..."
		multi = true
	}
	if multi {
		return fmt.Sprintf("%s: %s (details omitted)", name, line)
	}
	return fmt.Sprintf("%s: %s", name, line)
}

func ingredientList(v any) string {
	items, ok := v.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
