package ontology

import (
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/luxcrm/relay/internal/pkg/logger"
)

// ClaimTypeConfig describes how one claim type maps onto graph shapes.
type ClaimTypeConfig struct {
	DefaultPredicate string `yaml:"default_predicate"`
	SubjectKind      string `yaml:"subject_kind"`
	ObjectKind       string `yaml:"object_kind"`
	Sensitive        bool   `yaml:"sensitive"`
	HighValue        bool   `yaml:"high_value"`
}

// Config is the canonical predicate/claim-type table. A partial YAML file at
// ONTOLOGY_CONFIG_PATH overlays the built-in defaults key by key.
type Config struct {
	Version             string                     `yaml:"version"`
	PredicateAliases    map[string]string          `yaml:"predicate_aliases"`
	PredicateClaimType  map[string]string          `yaml:"predicate_claim_type"`
	ClaimTypes          map[string]ClaimTypeConfig `yaml:"claim_types"`
	HighValuePredicates []string                   `yaml:"high_value_predicates"`
}

func defaultConfig() *Config {
	return &Config{
		Version: "1.0",
		PredicateAliases: map[string]string{
			"employment_change": "works_at",
			"employed_by":       "works_at",
			"current_employer":  "works_at",
			"works_for":         "works_at",
			"talked_about":      "discussed_topic",
			"discussion":        "discussed_topic",
			"discussed":         "discussed_topic",
			"topic":             "discussed_topic",
			"child_attends":     "has_education_detail",
			"school":            "has_education_detail",
			"family_detail":     "has_family_detail",
			"interest":          "has_preference",
			"preference":        "has_preference",
			"goal":              "has_opportunity",
			"opportunity":       "has_opportunity",
		},
		PredicateClaimType: map[string]string{
			"works_at":             "employment",
			"discussed_topic":      "topic",
			"related_to":           "topic",
			"has_personal_detail":  "personal_detail",
			"has_preference":       "preference",
			"committed_to":         "commitment",
			"has_opportunity":      "opportunity",
			"located_in":           "location",
			"has_family_detail":    "family",
			"has_education_detail": "education",
		},
		ClaimTypes: map[string]ClaimTypeConfig{
			"topic":           {DefaultPredicate: "discussed_topic", SubjectKind: "Contact", ObjectKind: "Topic"},
			"employment":      {DefaultPredicate: "works_at", SubjectKind: "Contact", ObjectKind: "Company", HighValue: true},
			"personal_detail": {DefaultPredicate: "has_personal_detail", SubjectKind: "Contact", ObjectKind: "PersonalDetail", Sensitive: true, HighValue: true},
			"preference":      {DefaultPredicate: "has_preference", SubjectKind: "Contact", ObjectKind: "Preference", HighValue: true},
			"commitment":      {DefaultPredicate: "committed_to", SubjectKind: "Contact", ObjectKind: "Commitment", HighValue: true},
			"opportunity":     {DefaultPredicate: "has_opportunity", SubjectKind: "Contact", ObjectKind: "Opportunity", HighValue: true},
			"location":        {DefaultPredicate: "located_in", SubjectKind: "Contact", ObjectKind: "Location"},
			"family":          {DefaultPredicate: "has_family_detail", SubjectKind: "Contact", ObjectKind: "FamilyMember", Sensitive: true, HighValue: true},
			"education":       {DefaultPredicate: "has_education_detail", SubjectKind: "Contact", ObjectKind: "Institution"},
		},
		HighValuePredicates: []string{
			"works_at",
			"committed_to",
			"has_opportunity",
			"has_preference",
			"has_personal_detail",
			"has_family_detail",
		},
	}
}

var (
	loadOnce sync.Once
	loaded   *Config
)

// Load returns the process-wide ontology. The file at ONTOLOGY_CONFIG_PATH is
// optional; a missing or broken override falls back to defaults with a warning.
func Load(log *logger.Logger) *Config {
	loadOnce.Do(func() {
		loaded = loadFromEnv(log)
	})
	return loaded
}

// Reset drops the cached config. Test hook.
func Reset() {
	loadOnce = sync.Once{}
	loaded = nil
}

func loadFromEnv(log *logger.Logger) *Config {
	cfg := defaultConfig()
	path := strings.TrimSpace(os.Getenv("ONTOLOGY_CONFIG_PATH"))
	if path == "" {
		return cfg
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if log != nil {
			log.Warn("ontology override unreadable, using defaults", "path", path, "error", err)
		}
		return cfg
	}
	var override Config
	if err := yaml.Unmarshal(raw, &override); err != nil {
		if log != nil {
			log.Warn("ontology override parse failed, using defaults", "path", path, "error", err)
		}
		return cfg
	}
	cfg.merge(&override)
	return cfg
}

func (c *Config) merge(o *Config) {
	if o == nil {
		return
	}
	if o.Version != "" {
		c.Version = o.Version
	}
	for k, v := range o.PredicateAliases {
		c.PredicateAliases[NormalizeToken(k)] = NormalizeToken(v)
	}
	for k, v := range o.PredicateClaimType {
		c.PredicateClaimType[NormalizeToken(k)] = NormalizeToken(v)
	}
	for k, v := range o.ClaimTypes {
		c.ClaimTypes[NormalizeToken(k)] = v
	}
	if len(o.HighValuePredicates) > 0 {
		c.HighValuePredicates = o.HighValuePredicates
	}
}

// NormalizeToken lowercases and snake_cases a predicate or claim-type token.
func NormalizeToken(v string) string {
	v = strings.Join(strings.Fields(v), " ")
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.ReplaceAll(v, "-", "_")
	return strings.ReplaceAll(v, " ", "_")
}

// NormalizeText collapses inner whitespace without changing case.
func NormalizeText(v string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(v), " "))
}

// CanonicalPredicate resolves aliases onto the canonical predicate set.
// Unknown predicates pass through normalized.
func (c *Config) CanonicalPredicate(predicate string) string {
	norm := NormalizeToken(predicate)
	if norm == "" {
		return ""
	}
	if canonical, ok := c.PredicateAliases[norm]; ok && canonical != "" {
		return canonical
	}
	return norm
}

// ClaimTypeFor maps a predicate onto its claim type, defaulting to topic.
func (c *Config) ClaimTypeFor(predicate string) string {
	canonical := c.CanonicalPredicate(predicate)
	if mapped, ok := c.PredicateClaimType[canonical]; ok {
		if _, known := c.ClaimTypes[mapped]; known {
			return mapped
		}
	}
	return "topic"
}

// ClaimTypeConfigFor returns the config for a claim type, falling back to topic.
func (c *Config) ClaimTypeConfigFor(claimType string) ClaimTypeConfig {
	if cfg, ok := c.ClaimTypes[NormalizeToken(claimType)]; ok {
		return cfg
	}
	return c.ClaimTypes["topic"]
}

// IsSensitive reports whether a claim type defaults to sensitive handling.
func (c *Config) IsSensitive(claimType string) bool {
	return c.ClaimTypeConfigFor(claimType).Sensitive
}

// IsHighValue reports whether the predicate or its claim type is marked
// high value for relation materialization.
func (c *Config) IsHighValue(claimType, predicate string) bool {
	canonical := c.CanonicalPredicate(predicate)
	for _, p := range c.HighValuePredicates {
		if NormalizeToken(p) == canonical {
			return true
		}
	}
	return c.ClaimTypeConfigFor(claimType).HighValue
}
