package donation

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCrossedMilestones(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		name             string
		prev, curr, goal string
		want             []int
	}{
		{"40 to 60 fires 50", "400", "600", "1000", []int{50}},
		{"zero amount", "400", "400", "1000", nil},
		{"90 to 105 fires 100", "900", "1050", "1000", []int{100}},
		{"first donation to full goal", "0", "1000", "1000", []int{25, 50, 75, 100}},
		{"exactly on threshold fires", "0", "250", "1000", []int{25}},
		{"starting on threshold does not refire", "250", "300", "1000", nil},
		{"just below threshold", "0", "249.99", "1000", nil},
		{"already past goal", "1100", "1200", "1000", nil},
		{"unrounded percent", "746", "749", "1000", nil},
		{"third of goal", "0", "1", "3", []int{25}},
		{"zero goal", "0", "100", "0", nil},
		{"negative amount", "600", "400", "1000", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CrossedMilestones(d(tt.prev), d(tt.curr), d(tt.goal))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CrossedMilestones(%s, %s, %s) = %v, want %v", tt.prev, tt.curr, tt.goal, got, tt.want)
			}
		})
	}
}
