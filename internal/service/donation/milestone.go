package donation

import "github.com/shopspring/decimal"

// Milestones 里程碑阈值（百分比）
var Milestones = []int{25, 50, 75, 100}

var hundred = decimal.NewFromInt(100)

// CrossedMilestones 返回本次捐款跨越的阈值：prev% < t <= curr%。
// 比较 prev*100 < t*goal <= curr*100，避免除法带来的精度误差
func CrossedMilestones(prev, curr, goal decimal.Decimal) []int {
	if !goal.IsPositive() || !curr.GreaterThan(prev) {
		return nil
	}
	prevScaled := prev.Mul(hundred)
	currScaled := curr.Mul(hundred)

	var crossed []int
	for _, t := range Milestones {
		threshold := goal.Mul(decimal.NewFromInt(int64(t)))
		if prevScaled.LessThan(threshold) && threshold.LessThanOrEqual(currScaled) {
			crossed = append(crossed, t)
		}
	}
	return crossed
}
