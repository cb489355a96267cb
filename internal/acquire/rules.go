package acquire

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amanullahtanweer/video-transcriber/internal/retry"
)

//go:embed rules.yaml
var defaultRules []byte

// RuleSet represents the rules file
type RuleSet struct {
	Rules    []Rule       `yaml:"rules"`
	Settings RuleSettings `yaml:"settings"`
}

// Rule maps error text to a kind
type Rule struct {
	Kind        ErrorKind `yaml:"kind"`
	Description string    `yaml:"description"`
	Priority    int       `yaml:"priority"`
	Patterns    []Pattern `yaml:"patterns"`
}

// Pattern represents a single pattern to match
type Pattern struct {
	Type       string     `yaml:"type"`
	Phrases    []string   `yaml:"phrases,omitempty"`
	Words      [][]string `yaml:"words,omitempty"`
	WordGroups [][]string `yaml:"word_groups,omitempty"`
}

// RuleSettings represents pattern matching settings
type RuleSettings struct {
	CaseSensitive  bool `yaml:"case_sensitive"`
	ReloadOnChange bool `yaml:"reload_on_change"`
}

// Classifier assigns an ErrorKind to strategy errors
type Classifier struct {
	path     string
	rules    *RuleSet
	mu       sync.RWMutex
	lastLoad time.Time
	logger   *slog.Logger
}

// NewClassifier loads rules from path, or the embedded defaults when path is empty
func NewClassifier(path string, logger *slog.Logger) (*Classifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{path: path, logger: logger}

	if err := c.load(); err != nil {
		return nil, fmt.Errorf("failed to load acquisition rules: %w", err)
	}
	return c, nil
}

// load reads and parses the rules
func (c *Classifier) load() error {
	data := defaultRules
	if c.path != "" {
		var err error
		data, err = os.ReadFile(c.path)
		if err != nil {
			return fmt.Errorf("failed to read rules file: %w", err)
		}
	}

	var rules RuleSet
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return fmt.Errorf("failed to parse rules: %w", err)
	}
	for _, r := range rules.Rules {
		if !knownKind(r.Kind) {
			return fmt.Errorf("rule %q: unknown kind %q", r.Description, r.Kind)
		}
	}
	sort.SliceStable(rules.Rules, func(i, j int) bool {
		return rules.Rules[i].Priority < rules.Rules[j].Priority
	})

	c.mu.Lock()
	c.rules = &rules
	c.lastLoad = time.Now()
	c.mu.Unlock()

	c.logger.Debug("loaded acquisition rules", "rules", len(rules.Rules), "path", c.path)
	return nil
}

// reloadIfNeeded reloads the file if reload_on_change is enabled and it changed
func (c *Classifier) reloadIfNeeded() error {
	c.mu.RLock()
	shouldReload := c.path != "" && c.rules.Settings.ReloadOnChange
	lastLoad := c.lastLoad
	c.mu.RUnlock()

	if !shouldReload {
		return nil
	}

	info, err := os.Stat(c.path)
	if err != nil {
		return err
	}
	if info.ModTime().After(lastLoad) {
		c.logger.Info("acquisition rules modified, reloading", "path", c.path)
		return c.load()
	}
	return nil
}

// Classify returns the kind of err. Typed errors are checked first, then
// the phrase rules run over the error text.
func (c *Classifier) Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	if kind, ok := classifyTyped(err); ok {
		return kind
	}

	if rerr := c.reloadIfNeeded(); rerr != nil {
		c.logger.Warn("failed to reload acquisition rules", "error", rerr)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	text := err.Error()
	if !c.rules.Settings.CaseSensitive {
		text = strings.ToLower(text)
	}
	for _, rule := range c.rules.Rules {
		if c.matchesRule(text, rule) {
			return rule.Kind
		}
	}
	return KindUnknown
}

func classifyTyped(err error) (ErrorKind, bool) {
	var known *Error
	if errors.As(err, &known) && known.Kind != KindUnknown {
		return known.Kind, true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, true
	}
	if errors.Is(err, exec.ErrNotFound) {
		return KindToolMissing, true
	}

	var status *retry.StatusError
	if errors.As(err, &status) {
		switch {
		case status.StatusCode == http.StatusUnauthorized,
			status.StatusCode == http.StatusForbidden,
			status.StatusCode == http.StatusTooManyRequests:
			return KindBlocked, true
		case status.StatusCode == http.StatusNotFound, status.StatusCode == http.StatusGone:
			return KindNotMedia, true
		case status.StatusCode >= 500:
			return KindNetwork, true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork, true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNetwork, true
	}
	return "", false
}

func knownKind(k ErrorKind) bool {
	switch k {
	case KindNetwork, KindTimeout, KindBlocked, KindRestricted, KindEmptyPayload,
		KindMalformedResponse, KindNotMedia, KindToolMissing, KindUnknown:
		return true
	}
	return false
}

// matchesRule checks if the text matches any pattern in the rule
func (c *Classifier) matchesRule(text string, rule Rule) bool {
	for _, pattern := range rule.Patterns {
		if c.matchesPattern(text, pattern) {
			return true
		}
	}
	return false
}

// matchesPattern checks if the text matches a specific pattern
func (c *Classifier) matchesPattern(text string, pattern Pattern) bool {
	switch pattern.Type {
	case "exact":
		return c.matchesExact(text, pattern.Phrases)
	case "combo":
		return c.matchesCombo(text, pattern.Words)
	case "alternative":
		return c.matchesAlternative(text, pattern.WordGroups)
	default:
		c.logger.Warn("unknown pattern type", "type", pattern.Type)
		return false
	}
}

func (c *Classifier) fold(s string) string {
	if c.rules.Settings.CaseSensitive {
		return s
	}
	return strings.ToLower(s)
}

// matchesExact checks for phrase matches
func (c *Classifier) matchesExact(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, c.fold(phrase)) {
			return true
		}
	}
	return false
}

// matchesCombo checks if ALL words in a combination are present
func (c *Classifier) matchesCombo(text string, wordLists [][]string) bool {
	for _, wordList := range wordLists {
		allWordsPresent := true
		for _, word := range wordList {
			if !strings.Contains(text, c.fold(word)) {
				allWordsPresent = false
				break
			}
		}
		if allWordsPresent {
			return true
		}
	}
	return false
}

// matchesAlternative checks if any word from each group is present
func (c *Classifier) matchesAlternative(text string, wordGroups [][]string) bool {
	if len(wordGroups) == 0 {
		return false
	}
	words := strings.Fields(text)

	for _, group := range wordGroups {
		groupMatched := false
		for _, alternative := range group {
			want := c.fold(alternative)
			for _, word := range words {
				if strings.Contains(word, want) {
					groupMatched = true
					break
				}
			}
			if groupMatched {
				break
			}
		}
		if !groupMatched {
			return false
		}
	}
	return true
}

// Rules returns a copy of the loaded rules in priority order
func (c *Classifier) Rules() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Rule, len(c.rules.Rules))
	copy(out, c.rules.Rules)
	return out
}
