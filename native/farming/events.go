package farming

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"stakefarm/core/events"
	"stakefarm/core/types"
)

const (
	// EventTypeDeposited is emitted when a participant adds stake to the farm.
	EventTypeDeposited = "farming.pool.deposited"
	// EventTypeWithdrawn is emitted when principal leaves the farm.
	EventTypeWithdrawn = "farming.pool.withdrawn"
	// EventTypeCompounded is emitted when pending reward is folded into stake.
	EventTypeCompounded = "farming.reward.compounded"
	// EventTypePeriodAdvanced is emitted once per schedule boundary crossed
	// during a refresh.
	EventTypePeriodAdvanced = "farming.period.advanced"
	// EventTypeIssuanceRefused is emitted when the issuance authority rejects a
	// mint request; the interval accrues no reward but the call succeeds.
	EventTypeIssuanceRefused = "farming.issuance.refused"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func depositedEvent(user [20]byte, amount, pending *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeDeposited,
		Attributes: map[string]string{
			"user":    hex.EncodeToString(user[:]),
			"amount":  formatAmount(amount),
			"pending": formatAmount(pending),
		},
	}
}

func withdrawnEvent(user [20]byte, amount, pending *big.Int, all bool) *types.Event {
	return &types.Event{
		Type: EventTypeWithdrawn,
		Attributes: map[string]string{
			"user":    hex.EncodeToString(user[:]),
			"amount":  formatAmount(amount),
			"pending": formatAmount(pending),
			"all":     strconv.FormatBool(all),
		},
	}
}

func compoundedEvent(user [20]byte, pending *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeCompounded,
		Attributes: map[string]string{
			"user":    hex.EncodeToString(user[:]),
			"pending": formatAmount(pending),
		},
	}
}

func periodAdvancedEvent(period, boundaryTick uint64, stakingRate, othersRate *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypePeriodAdvanced,
		Attributes: map[string]string{
			"period":       strconv.FormatUint(period, 10),
			"boundaryTick": strconv.FormatUint(boundaryTick, 10),
			"stakingRate":  formatAmount(stakingRate),
			"othersRate":   formatAmount(othersRate),
		},
	}
}

func issuanceRefusedEvent(stream string, amount *big.Int, reason string) *types.Event {
	return &types.Event{
		Type: EventTypeIssuanceRefused,
		Attributes: map[string]string{
			"stream": stream,
			"amount": formatAmount(amount),
			"reason": reason,
		},
	}
}
