package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCategories returns the built-in category set with the descriptions
// whose embeddings serve as category prototypes.
func DefaultCategories() map[string]string {
	return map[string]string{
		"sports":    "Sports news about matches, athletes, teams and sporting events",
		"finance":   "Financial markets, stocks, economy and business news",
		"politics":  "Political news, elections, government policies",
		"lifestyle": "Lifestyle, health, travel, food and culture",
		"music":     "Music artists, albums, concerts and industry news",
	}
}

// DefaultCategoryOrder returns the built-in category precedence.
func DefaultCategoryOrder() []string {
	return []string{"sports", "finance", "politics", "lifestyle", "music"}
}

// DefaultPriorityKeywords returns the built-in title keywords that mark an
// article as priority within its category.
func DefaultPriorityKeywords() map[string][]string {
	return map[string][]string{
		"sports": {
			"breaking", "championship", "cup final", "olympics", "transfer",
			"injury update", "record broken", "doping scandal", "last minute",
			"trophy", "victory", "defeat", "comeback",
		},
		"finance": {
			"alert", "breaking", "market crash", "rate hike", "earnings report",
			"recession", "inflation", "fed decision", "stock plunge", "merger",
			"bankruptcy", "crypto crash", "dividend", "short squeeze", "ipo",
		},
		"politics": {
			"election", "scandal", "resignation", "law passed", "protest",
			"breaking", "impeachment", "summit", "sanctions", "diplomatic crisis",
			"war", "treaty", "vote result", "corruption", "speech",
		},
		"lifestyle": {
			"viral", "trending", "recipe", "hack", "celebrity", "wedding",
			"divorce", "pregnancy", "royal family", "makeover", "controversial",
			"banned", "recall", "study finds",
		},
		"music": {
			"tour announced", "new album", "grammy", "controversy", "feud",
			"concert disaster", "chart-topping", "streaming record", "comeback",
			"breakup", "collaboration", "lyrics decoded", "canceled", "viral hit",
		},
	}
}

// LoadTaxonomyFile reads a YAML taxonomy file:
//
//	categories:
//	  sports: Sports news about matches, athletes, teams and sporting events
//	priority_keywords:
//	  sports: [championship, trophy]
//
// Without an explicit order list, categories take precedence in the order
// the file lists them.
func LoadTaxonomyFile(path string) (Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Taxonomy{}, fmt.Errorf("failed to read taxonomy file: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Taxonomy{}, fmt.Errorf("failed to parse taxonomy file %s: %w", path, err)
	}
	var taxonomy Taxonomy
	if err := doc.Decode(&taxonomy); err != nil {
		return Taxonomy{}, fmt.Errorf("failed to parse taxonomy file %s: %w", path, err)
	}
	if len(taxonomy.Order) == 0 {
		taxonomy.Order = mappingKeys(&doc, "categories")
	}

	// Category names are matched case-insensitively everywhere else
	categories := make(map[string]string, len(taxonomy.Categories))
	for name, description := range taxonomy.Categories {
		categories[strings.ToLower(strings.TrimSpace(name))] = description
	}
	keywords := make(map[string][]string, len(taxonomy.PriorityKeywords))
	for name, list := range taxonomy.PriorityKeywords {
		keywords[strings.ToLower(strings.TrimSpace(name))] = list
	}
	for i, name := range taxonomy.Order {
		taxonomy.Order[i] = strings.ToLower(strings.TrimSpace(name))
	}
	taxonomy.Categories = categories
	taxonomy.PriorityKeywords = keywords
	taxonomy.File = path

	return taxonomy, nil
}

// mappingKeys returns the keys of the top-level mapping field in document
// order, or nil when the field is absent or not a mapping.
func mappingKeys(doc *yaml.Node, field string) []string {
	root := doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != field || root.Content[i+1].Kind != yaml.MappingNode {
			continue
		}
		value := root.Content[i+1]
		keys := make([]string, 0, len(value.Content)/2)
		for j := 0; j < len(value.Content); j += 2 {
			keys = append(keys, value.Content[j].Value)
		}
		return keys
	}
	return nil
}
