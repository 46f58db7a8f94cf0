package relayer

import (
	"math/big"

	"github.com/r-cryptocurrency/moonbridge/entity"
)

// Partial fills refund the unfilled remainder minus a flat basis-point fee
// that compensates the relayer for the extra refund transaction.
const (
	RefundFeeBPS   = 100
	bpsDenominator = 10000
)

// Plan is the arithmetic outcome of matching a request against destination
// liquidity. FulfillAmount + RefundAmount always equals the requested amount;
// RefundFee is carved out of RefundAmount on-chain, not subtracted here.
type Plan struct {
	FulfillAmount *big.Int
	RefundAmount  *big.Int
	RefundFee     *big.Int
}

// Partial reports whether the plan leaves a remainder to refund.
func (p *Plan) Partial() bool {
	return p.RefundAmount.Sign() > 0
}

// Planner computes fulfillment plans. maxRefundFee of nil leaves the fee
// uncapped, matching bridge deployments without a fee ceiling.
type Planner struct {
	maxRefundFee *big.Int
}

func NewPlanner(maxRefundFee *big.Int) *Planner {
	return &Planner{maxRefundFee: maxRefundFee}
}

// Plan matches the requested amount against available liquidity. A request
// fully covered by liquidity yields a zero refund; a request exceeding
// liquidity is filled up to the liquidity and the rest is refunded. The
// planner never returns a negative component and never mutates its inputs.
func (p *Planner) Plan(req *entity.BridgeRequest, liquidity *big.Int) *Plan {
	fulfill := new(big.Int).Set(req.Amount)
	if liquidity.Cmp(fulfill) < 0 {
		fulfill.Set(liquidity)
	}
	if fulfill.Sign() < 0 {
		fulfill.SetInt64(0)
	}

	refund := new(big.Int).Sub(req.Amount, fulfill)

	fee := new(big.Int).Mul(refund, big.NewInt(RefundFeeBPS))
	fee.Div(fee, big.NewInt(bpsDenominator))
	if p.maxRefundFee != nil && fee.Cmp(p.maxRefundFee) > 0 {
		fee.Set(p.maxRefundFee)
	}

	return &Plan{
		FulfillAmount: fulfill,
		RefundAmount:  refund,
		RefundFee:     fee,
	}
}
