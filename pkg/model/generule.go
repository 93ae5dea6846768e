package model

import (
	"fmt"
	"strings"
)

// GeneRule is a parsed gene-reaction rule: a boolean expression over gene
// identifiers combined with "and"/"or". The zero value is the empty rule.
type GeneRule struct {
	root *geneRuleNode
}

type geneRuleNode struct {
	gene     string // leaf when non-empty
	op       string // "and" or "or" for interior nodes
	children []*geneRuleNode
}

// ParseGeneRule parses a gene-reaction rule. Accepted operators are the
// word forms "and"/"or" (case-insensitive) and the symbolic forms "&"/"&&"
// and "|"/"||" used by older exports. An empty or blank input yields the
// empty rule.
func ParseGeneRule(input string) (GeneRule, error) {
	tokens, err := tokenizeGeneRule(input)
	if err != nil {
		return GeneRule{}, err
	}
	if len(tokens) == 0 {
		return GeneRule{}, nil
	}
	parser := &geneRuleParser{tokens: tokens}
	node, err := parser.parseOr()
	if err != nil {
		return GeneRule{}, err
	}
	if parser.pos != len(parser.tokens) {
		return GeneRule{}, fmt.Errorf("unexpected token %q", parser.tokens[parser.pos])
	}
	return GeneRule{root: node}, nil
}

// IsEmpty reports whether the rule contains no genes.
func (r GeneRule) IsEmpty() bool { return r.root == nil }

// GeneRuleNode is one node of a parsed rule: either a leaf carrying Gene, or
// an interior node whose children are combined with Op ("and" or "or").
type GeneRuleNode struct {
	Gene     string
	Op       string
	Children []GeneRuleNode
}

// Root returns the rule's expression tree. ok is false for the empty rule.
func (r GeneRule) Root() (GeneRuleNode, bool) {
	if r.root == nil {
		return GeneRuleNode{}, false
	}
	return exportNode(r.root), true
}

func exportNode(n *geneRuleNode) GeneRuleNode {
	out := GeneRuleNode{Gene: n.gene, Op: n.op}
	for _, child := range n.children {
		out.Children = append(out.Children, exportNode(child))
	}
	return out
}

// Genes returns the distinct gene identifiers referenced by the rule, in
// first-appearance order.
func (r GeneRule) Genes() []string {
	var out []string
	seen := make(map[string]struct{})
	var walk func(*geneRuleNode)
	walk = func(n *geneRuleNode) {
		if n == nil {
			return
		}
		if n.gene != "" {
			if _, ok := seen[n.gene]; !ok {
				seen[n.gene] = struct{}{}
				out = append(out, n.gene)
			}
			return
		}
		for _, child := range n.children {
			walk(child)
		}
	}
	walk(r.root)
	return out
}

// String renders the rule in its canonical flattened form: word operators,
// parentheses only where precedence requires them.
func (r GeneRule) String() string {
	return renderGeneRule(r.root, "")
}

func renderGeneRule(n *geneRuleNode, parentOp string) string {
	if n == nil {
		return ""
	}
	if n.gene != "" {
		return n.gene
	}
	parts := make([]string, len(n.children))
	for i, child := range n.children {
		parts[i] = renderGeneRule(child, n.op)
	}
	joined := strings.Join(parts, " "+n.op+" ")
	// "and" nested inside "or" keeps no parens; "or" inside "and" needs them.
	if n.op == "or" && parentOp == "and" {
		return "(" + joined + ")"
	}
	return joined
}

func tokenizeGeneRule(input string) ([]string, error) {
	replacer := strings.NewReplacer("(", " ( ", ")", " ) ", "&&", " and ", "||", " or ", "&", " and ", "|", " or ")
	fields := strings.Fields(replacer.Replace(input))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		switch strings.ToLower(f) {
		case "and":
			tokens = append(tokens, "and")
		case "or":
			tokens = append(tokens, "or")
		default:
			tokens = append(tokens, f)
		}
	}
	return tokens, nil
}

type geneRuleParser struct {
	tokens []string
	pos    int
}

func (p *geneRuleParser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *geneRuleParser) parseOr() (*geneRuleNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []*geneRuleNode{left}
	for p.peek() == "or" {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return &geneRuleNode{op: "or", children: children}, nil
}

func (p *geneRuleParser) parseAnd() (*geneRuleNode, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	children := []*geneRuleNode{left}
	for p.peek() == "and" {
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return &geneRuleNode{op: "and", children: children}, nil
}

func (p *geneRuleParser) parseTerm() (*geneRuleNode, error) {
	tok := p.peek()
	switch tok {
	case "":
		return nil, fmt.Errorf("unexpected end of rule")
	case "(":
		p.pos++
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return node, nil
	case ")", "and", "or":
		return nil, fmt.Errorf("unexpected token %q", tok)
	default:
		p.pos++
		return &geneRuleNode{gene: tok}, nil
	}
}
