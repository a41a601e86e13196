// Package validate provides the CEL-Go based row validation engine.
package validate

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/salesops/harrier/internal/domain"
)

// Check is a named validation rule over a sales row. The expression must
// evaluate to a bool; false marks the row invalid.
type Check struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Enabled     bool   `json:"enabled"`
}

// Violation records one failed check for a row.
type Violation struct {
	Check   string `json:"check"`
	Message string `json:"message"`
}

type compiledCheck struct {
	check   Check
	program cel.Program
}

// Engine compiles and evaluates row validation checks.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*compiledCheck
}

// NewEngine creates a validation engine with the sales row variables bound.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("customer_code", cel.StringType),
		cel.Variable("customer_name", cel.StringType),
		cel.Variable("salesperson_code", cel.StringType),
		cel.Variable("item_no", cel.StringType),
		cel.Variable("document_no", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("quantity", cel.DoubleType),
		cel.Variable("posting_date", cel.TimestampType),
		cel.Variable("now", cel.TimestampType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]*compiledCheck),
	}, nil
}

// DefaultChecks returns the built-in data-quality checks.
func DefaultChecks() []Check {
	return []Check{
		{
			Name:        "has_customer_code",
			Description: "every row must carry a customer code",
			Expression:  `customer_code != ''`,
			Enabled:     true,
		},
		{
			Name:        "nonzero_amount",
			Description: "zero-amount lines are almost always import artifacts",
			Expression:  `amount != 0.0`,
			Enabled:     true,
		},
		{
			Name:        "posting_date_not_future",
			Description: "posting dates in the future break window math",
			Expression:  `posting_date <= now`,
			Enabled:     true,
		},
	}
}

// LoadDefaults compiles and loads the built-in checks.
func (e *Engine) LoadDefaults() error {
	return e.LoadChecks(DefaultChecks())
}

// LoadCheck compiles and loads one check.
func (e *Engine) LoadCheck(c Check) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(c)
	if err != nil {
		return err
	}
	e.compiled[c.Name] = compiled
	return nil
}

// LoadChecks compiles and loads multiple checks, skipping disabled ones.
func (e *Engine) LoadChecks(checks []Check) error {
	for _, c := range checks {
		if !c.Enabled {
			continue
		}
		if err := e.LoadCheck(c); err != nil {
			return err
		}
	}
	return nil
}

// Checks returns the currently loaded checks.
func (e *Engine) Checks() []Check {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Check, 0, len(e.compiled))
	for _, c := range e.compiled {
		out = append(out, c.check)
	}
	return out
}

// CheckCount returns the number of loaded checks.
func (e *Engine) CheckCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Validate evaluates every loaded check against the row. An expression
// evaluation error counts as a violation: a check that cannot run must not
// silently pass rows through.
func (e *Engine) Validate(row domain.SalesRow) []Violation {
	e.mu.RLock()
	checks := make([]*compiledCheck, 0, len(e.compiled))
	for _, c := range e.compiled {
		checks = append(checks, c)
	}
	e.mu.RUnlock()

	if len(checks) == 0 {
		return nil
	}

	activation := map[string]any{
		"customer_code":    row.CustomerCode,
		"customer_name":    row.CustomerName,
		"salesperson_code": row.SalespersonCode,
		"item_no":          row.ItemNo,
		"document_no":      row.DocumentNo,
		"amount":           row.Amount,
		"quantity":         row.Quantity,
		"posting_date":     row.PostingDate,
		"now":              time.Now().UTC(),
	}

	var violations []Violation
	for _, c := range checks {
		out, _, err := c.program.Eval(activation)
		if err != nil {
			violations = append(violations, Violation{
				Check:   c.check.Name,
				Message: fmt.Sprintf("evaluation error: %v", err),
			})
			continue
		}
		if passed, ok := out.(types.Bool); !ok || !bool(passed) {
			violations = append(violations, Violation{
				Check:   c.check.Name,
				Message: c.check.Description,
			})
		}
	}
	return violations
}

func (e *Engine) compile(c Check) (*compiledCheck, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("check name is required")
	}

	ast, issues := e.env.Compile(c.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile check %s: %w", c.Name, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("check %s: expression must return bool, got %s", c.Name, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for check %s: %w", c.Name, err)
	}

	return &compiledCheck{check: c, program: program}, nil
}
