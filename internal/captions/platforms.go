package captions

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed platforms.yaml
var defaultPlatforms []byte

// Platform describes how to recognise a captioned video page.
type Platform struct {
	Name       string   `yaml:"name"`
	Title      string   `yaml:"title"`
	Hosts      []string `yaml:"hosts"`
	IDPatterns []string `yaml:"id_patterns"`
	Reasons    Reasons  `yaml:"reasons"`

	patterns []*regexp.Regexp
}

// Reasons extends the built-in playability keywords for one platform.
type Reasons struct {
	Network    []string `yaml:"network"`
	NoCaptions []string `yaml:"no_captions"`
}

type platformsFile struct {
	Platforms []Platform `yaml:"platforms"`
}

// Platforms matches URLs against the configured platforms.
type Platforms struct {
	list []Platform
}

// LoadPlatforms reads path, or the embedded defaults when path is empty.
func LoadPlatforms(path string) (*Platforms, error) {
	data := defaultPlatforms
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read platforms file: %w", err)
		}
	}
	return ParsePlatforms(data)
}

// ParsePlatforms compiles a platforms YAML document.
func ParsePlatforms(data []byte) (*Platforms, error) {
	var file platformsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse platforms: %w", err)
	}

	for i := range file.Platforms {
		p := &file.Platforms[i]
		if p.Name == "" || len(p.Hosts) == 0 || len(p.IDPatterns) == 0 {
			return nil, fmt.Errorf("platform %d: name, hosts and id_patterns are required", i)
		}
		for j, h := range p.Hosts {
			p.Hosts[j] = strings.ToLower(strings.TrimPrefix(h, "www."))
		}
		for _, expr := range p.IDPatterns {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("platform %s: bad id pattern %q: %w", p.Name, expr, err)
			}
			if re.NumSubexp() < 1 {
				return nil, fmt.Errorf("platform %s: id pattern %q has no capture group", p.Name, expr)
			}
			p.patterns = append(p.patterns, re)
		}
	}
	return &Platforms{list: file.Platforms}, nil
}

// Match returns the platform and video id for rawURL.
func (ps *Platforms) Match(rawURL string) (Platform, string, bool) {
	u, ok := parseLoose(rawURL)
	if !ok {
		return Platform{}, "", false
	}
	host := strings.ToLower(u.Hostname())

	for _, p := range ps.list {
		if !hostMatches(host, p.Hosts) {
			continue
		}
		target := u.Host + u.RequestURI()
		for _, re := range p.patterns {
			if m := re.FindStringSubmatch(target); len(m) > 1 && m[1] != "" {
				return p, m[1], true
			}
		}
		return Platform{}, "", false
	}
	return Platform{}, "", false
}

// Classifier returns the built-in reason classifier extended with the
// keywords configured for the named platform.
func (ps *Platforms) Classifier(name string) *ReasonClassifier {
	rc := NewReasonClassifier()
	for _, p := range ps.list {
		if p.Name != name {
			continue
		}
		for _, k := range p.Reasons.Network {
			rc.AddNetworkKeyword(k)
		}
		for _, k := range p.Reasons.NoCaptions {
			rc.AddNoCaptionsKeyword(k)
		}
	}
	return rc
}

// Names lists the configured platform names in order.
func (ps *Platforms) Names() []string {
	names := make([]string, 0, len(ps.list))
	for _, p := range ps.list {
		names = append(names, p.Name)
	}
	return names
}

func parseLoose(rawURL string) (*url.URL, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, false
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, false
	}
	return u, true
}

func hostMatches(host string, hosts []string) bool {
	for _, h := range hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
