// internal/service/order/infrastructure/rule/cel_rules_engine_test.go
package rule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas/internal/pkg/apperr"
	"atlas/internal/service/order/domain/port"
)

func TestCELRulesEngineEvaluate(t *testing.T) {
	engine, err := NewCELRulesEngine([]string{
		"quantity <= 100",
		"totalAmount < 10000.0",
	})
	require.NoError(t, err)

	err = engine.Evaluate(context.Background(), port.OrderFacts{Quantity: 3, ItemsCount: 1, TotalAmount: 59.97})
	assert.NoError(t, err)

	err = engine.Evaluate(context.Background(), port.OrderFacts{Quantity: 500, ItemsCount: 1, TotalAmount: 59.97})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidInput))

	err = engine.Evaluate(context.Background(), port.OrderFacts{Quantity: 3, ItemsCount: 1, TotalAmount: 99999})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidInput))
}

func TestCELRulesEngineEmptyRulesPass(t *testing.T) {
	engine, err := NewCELRulesEngine(nil)
	require.NoError(t, err)
	assert.NoError(t, engine.Evaluate(context.Background(), port.OrderFacts{Quantity: 1}))
}

func TestCELRulesEngineRejectsBadRules(t *testing.T) {
	_, err := NewCELRulesEngine([]string{"quantity +"})
	assert.Error(t, err)

	// 非布尔输出在启动期就要被拦下
	_, err = NewCELRulesEngine([]string{"quantity + 1"})
	assert.Error(t, err)
}
