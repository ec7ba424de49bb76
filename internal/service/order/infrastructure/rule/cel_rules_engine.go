// internal/service/order/infrastructure/rule/cel_rules_engine.go
package rule

import (
	"context"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"atlas/internal/pkg/apperr"
	"atlas/internal/pkg/logger"
	"atlas/internal/service/order/domain/port"
)

// CELRulesEngine 实现 port.RuleEngine：用配置下发的 CEL 布尔表达式
// 做下单准入裁决。表达式在构造时编译，编译失败阻止服务启动。
type CELRulesEngine struct {
	rules []compiledRule
}

type compiledRule struct {
	source  string
	program cel.Program
}

// NewCELRulesEngine 编译全部规则。规则为空时引擎放行一切。
func NewCELRulesEngine(expressions []string) (*CELRulesEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("quantity", cel.IntType),
		cel.Variable("itemsCount", cel.IntType),
		cel.Variable("totalAmount", cel.DoubleType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cel environment")
	}

	engine := &CELRulesEngine{}
	for _, expr := range expressions {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, errors.Wrapf(issues.Err(), "failed to compile order rule %q", expr)
		}
		if ast.OutputType() != cel.BoolType {
			return nil, errors.Errorf("order rule %q must evaluate to bool", expr)
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to build program for order rule %q", expr)
		}
		engine.rules = append(engine.rules, compiledRule{source: expr, program: program})
	}
	return engine, nil
}

// Evaluate 逐条执行规则，任一条不为 true 即拒单。
func (e *CELRulesEngine) Evaluate(ctx context.Context, facts port.OrderFacts) error {
	if len(e.rules) == 0 {
		return nil
	}
	input := map[string]interface{}{
		"quantity":    int64(facts.Quantity),
		"itemsCount":  int64(facts.ItemsCount),
		"totalAmount": facts.TotalAmount,
	}
	for _, rule := range e.rules {
		out, _, err := rule.program.Eval(input)
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("rule", rule.source).Msg("order rule evaluation failed")
			return apperr.InvalidInput("Order rejected by acceptance rules")
		}
		passed, ok := out.Value().(bool)
		if !ok || !passed {
			return apperr.InvalidInput("Order rejected by acceptance rules")
		}
	}
	return nil
}
