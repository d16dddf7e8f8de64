package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const linkQuery = "data.sessionauth.federation.allow_link"

// DefaultLinkPolicy links an existing account only when the provider verified the email.
const DefaultLinkPolicy = `package sessionauth.federation

default allow_link := false

allow_link if {
	input.claims.email_verified
	input.claims.email == input.user.email
}
`

// OPALinkEvaluator evaluates the federation link policy with OPA Rego. The
// query is compiled once and is safe for concurrent use.
type OPALinkEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPALinkEvaluator compiles policy (DefaultLinkPolicy when empty). The
// module must define data.sessionauth.federation.allow_link.
func NewOPALinkEvaluator(ctx context.Context, policy string) (*OPALinkEvaluator, error) {
	if strings.TrimSpace(policy) == "" {
		policy = DefaultLinkPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"link_policy.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile link policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(linkQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare link policy: %w", err)
	}
	return &OPALinkEvaluator{query: q}, nil
}

// LoadLinkPolicy reads a Rego module from path. An empty path returns the default policy.
func LoadLinkPolicy(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultLinkPolicy, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read link policy: %w", err)
	}
	return string(b), nil
}

// AllowLink evaluates the policy. An undefined or non-boolean result denies.
func (e *OPALinkEvaluator) AllowLink(ctx context.Context, in LinkInput) (bool, error) {
	input, err := toInput(in)
	if err != nil {
		return false, fmt.Errorf("build input: %w", err)
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval link policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allow, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allow, nil
}

// HealthCheck evaluates the compiled policy against a minimal input.
func (e *OPALinkEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.AllowLink(ctx, LinkInput{})
	return err
}

// toInput round-trips through JSON so Rego sees the struct tags as keys.
func toInput(in LinkInput) (map[string]any, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
