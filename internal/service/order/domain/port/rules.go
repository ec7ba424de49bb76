// internal/service/order/domain/port/rules.go
package port

import "context"

// OrderFacts 是准入规则可见的订单事实。
type OrderFacts struct {
	Quantity    int
	ItemsCount  int
	TotalAmount float64
}

// RuleEngine 在 Saga 启动前对订单事实做准入裁决。
// 任一规则不通过即返回 InvalidInput 类错误。
type RuleEngine interface {
	Evaluate(ctx context.Context, facts OrderFacts) error
}
