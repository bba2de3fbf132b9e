// Package theme assigns a topic label to a question with an ordered list of
// keyword rules.
package theme

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Rule labels text that matches Pattern or any of Keywords. Pattern is a
// regular expression matched as a whole word: it must be preceded and
// followed by a non-word character or the text boundary.
type Rule struct {
	Label    string   `json:"label" yaml:"label"`
	Pattern  string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`

	re *regexp.Regexp
}

// wordBounded wraps an alternation so it only matches whole words. Go's \b
// only knows ASCII, which would split "regulação" after "regula".
func wordBounded(body string) string {
	return `(?i)(?:^|[^\p{L}\p{N}_])(?:` + body + `)(?:$|[^\p{L}\p{N}_])`
}

func (r *Rule) compile() error {
	alts := make([]string, 0, len(r.Keywords)+1)
	if r.Pattern != "" {
		alts = append(alts, r.Pattern)
	}
	for _, k := range r.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			alts = append(alts, regexp.QuoteMeta(k))
		}
	}
	if len(alts) == 0 {
		return fmt.Errorf("rule %q has no pattern or keywords", r.Label)
	}
	re, err := regexp.Compile(wordBounded(strings.Join(alts, "|")))
	if err != nil {
		return fmt.Errorf("rule %q: %w", r.Label, err)
	}
	r.re = re
	return nil
}

// RuleSet is an ordered classifier. The first matching rule wins; Fallback
// is returned when none matches.
type RuleSet struct {
	Rules    []Rule `json:"rules" yaml:"rules"`
	Fallback string `json:"fallback" yaml:"fallback"`
}

// New compiles the rules in the given order.
func New(rules []Rule, fallback string) (*RuleSet, error) {
	rs := &RuleSet{Rules: make([]Rule, len(rules)), Fallback: fallback}
	copy(rs.Rules, rules)
	if err := rs.compile(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *RuleSet) compile() error {
	if len(rs.Rules) == 0 {
		return fmt.Errorf("rule set is empty")
	}
	for i := range rs.Rules {
		if rs.Rules[i].Label == "" {
			return fmt.Errorf("rule %d has no label", i)
		}
		if err := rs.Rules[i].compile(); err != nil {
			return err
		}
	}
	return nil
}

// Classify returns the label of the first rule matching text.
func (rs *RuleSet) Classify(text string) string {
	t := strings.ToLower(norm.NFC.String(text))
	for _, r := range rs.Rules {
		if r.re != nil && r.re.MatchString(t) {
			return r.Label
		}
	}
	return rs.Fallback
}

// DefaultFallback is the label returned when no default rule matches.
const DefaultFallback = "Produtos e Investimentos"

// DefaultRules returns the CEA exam themes in precedence order.
func DefaultRules() []Rule {
	return []Rule{
		{Label: "Sistema Financeiro e Regulação", Pattern: `CVM|BACEN|BCB|SUSEP|PREVIC|ANBIMA|CMN|COPOM|regula(ç|c)ão|c[oó]digo anbima`},
		{Label: "Produtos e Investimentos", Pattern: `CDB|LCI|LCA|CRI|CRA|LFT|LTN|NTN|deb(e|ê)ntur|ETF|fundos?|a[cç]ões?|poupan(ç|c)a|tesouro|COE|FIDC`},
		{Label: "Análise, Planejamento e Gestão", Pattern: `planejamento|rebalanceamento|carteira|aloca(ç|c)[aã]o|CMPC|WACC|VPL|TIR|gest(ã|a)o|or(ç|c)amento`},
		{Label: "Mercado Financeiro e Economia", Pattern: `Selic|infla(ç|c)[aã]o|c(â|a)mbio|PIB|balan(ç|c)a comercial|balan(ç|c)a de pagamentos|juros|mercado`},
		{Label: "Ética e Compliance", Pattern: `lavagem de dinheiro|insider trading|compliance|[ée]tica|infra(ç|c)[aã]o|COAF`},
		{Label: "Perfil e Comportamento do Investidor", Pattern: `perfil do investidor|suitability|comportamental|vi[ée]s|avers(ã|a)o a risco|conservador|moderado|arrojado`},
	}
}

// Default returns the compiled default rule set.
func Default() *RuleSet {
	rs, err := New(DefaultRules(), DefaultFallback)
	if err != nil {
		panic("theme: default rules: " + err.Error())
	}
	return rs
}

// LoadRules reads an ordered rule set from a YAML file:
//
//	fallback: Outros
//	rules:
//	  - label: Renda Fixa
//	    keywords: [CDB, LCI]
//	  - label: Economia
//	    pattern: infla(ç|c)[aã]o|selic
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading theme rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rule set. An empty fallback keeps
// DefaultFallback.
func ParseRules(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parsing theme rules: %w", err)
	}
	if rs.Fallback == "" {
		rs.Fallback = DefaultFallback
	}
	if err := rs.compile(); err != nil {
		return nil, err
	}
	return &rs, nil
}
