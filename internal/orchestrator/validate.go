package orchestrator

import (
	"github.com/shopspring/decimal"

	"github.com/okxtrader/swapagent/internal/model"
)

// fillMissingSizes fills zero-size TP/SL layers by distributing the
// position's remaining unallocated size evenly among them, then validates
// that each leg's sizes sum to total within model.SumValidationEpsilon.
// This resolves the spec's silence on how partial layer sizing should be
// completed: the model may specify prices for every layer but only a
// subset of sizes, leaving the rest to be split evenly.
func fillMissingSizes(adjust *model.AdjustData, total decimal.Decimal) (*model.AdjustData, error) {
	if adjust == nil {
		return nil, nil
	}
	filled := model.AdjustData{
		TakeProfit: fillLeg(adjust.TakeProfit, total),
		StopLoss:   fillLeg(adjust.StopLoss, total),
	}
	if err := filled.ValidateSums(total); err != nil {
		return nil, err
	}
	return &filled, nil
}

func fillLeg(layers []model.TPSLLayer, total decimal.Decimal) []model.TPSLLayer {
	if len(layers) == 0 {
		return layers
	}
	out := make([]model.TPSLLayer, len(layers))
	copy(out, layers)

	allocated := decimal.Zero
	var zeroIdx []int
	for i, l := range out {
		if l.Size.IsZero() {
			zeroIdx = append(zeroIdx, i)
			continue
		}
		allocated = allocated.Add(l.Size)
	}
	if len(zeroIdx) == 0 {
		return out
	}

	remaining := total.Sub(allocated)
	if remaining.LessThanOrEqual(decimal.Zero) {
		return out
	}
	share := remaining.Div(decimal.NewFromInt(int64(len(zeroIdx))))
	for n, idx := range zeroIdx {
		if n == len(zeroIdx)-1 {
			// last share absorbs any rounding remainder
			already := share.Mul(decimal.NewFromInt(int64(n)))
			out[idx].Size = remaining.Sub(already)
			continue
		}
		out[idx].Size = share
	}
	return out
}
