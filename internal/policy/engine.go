// Package policy evaluates CEL admission rules over requirement records
// before anything is fetched.
package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/VikingOwl91/pip-warden/internal/config"
	"github.com/VikingOwl91/pip-warden/internal/requirements"
)

// Effect is a policy decision.
type Effect int

const (
	Allow Effect = iota
	Deny
)

func (e Effect) String() string {
	if e == Deny {
		return "deny"
	}
	return "allow"
}

type compiledRule struct {
	name    string
	effect  Effect
	program cel.Program
}

// Engine holds the compiled rule set. Rules run in order, first match
// wins, and the configured default applies when nothing matches.
type Engine struct {
	defaultEffect Effect
	defaultName   string
	rules         []compiledRule
}

// New compiles the configured rules. Expressions see one requirement at a
// time through four variables: name, specifier, pinned, and file.
func New(cfg config.PolicyConfig) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("specifier", cel.StringType),
		cel.Variable("pinned", cel.BoolType),
		cel.Variable("file", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}

	e := &Engine{defaultEffect: Allow, defaultName: "default:allow"}
	if cfg.Default == "deny" {
		e.defaultEffect = Deny
		e.defaultName = "default:deny"
	}

	for _, rule := range cfg.Rules {
		ast, issues := env.Compile(rule.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, issues.Err())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}

		effect := Allow
		if rule.Effect == "deny" {
			effect = Deny
		}
		e.rules = append(e.rules, compiledRule{name: rule.Name, effect: effect, program: program})
	}

	return e, nil
}

// Evaluate decides the effect for one requirement and names the deciding
// rule. Evaluation errors and non-boolean results fail closed to Deny.
func (e *Engine) Evaluate(rec requirements.Record) (Effect, string) {
	vars := map[string]any{
		"name":      rec.Name,
		"specifier": rec.Specifier,
		"pinned":    rec.Pinned(),
		"file":      rec.File,
	}

	for _, rule := range e.rules {
		out, _, err := rule.program.Eval(vars)
		if err != nil {
			return Deny, fmt.Sprintf("error:%s", rule.name)
		}
		matched, ok := out.Value().(bool)
		if !ok {
			return Deny, fmt.Sprintf("error:%s", rule.name)
		}
		if matched {
			return rule.effect, rule.name
		}
	}

	return e.defaultEffect, e.defaultName
}
