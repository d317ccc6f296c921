package aggregate

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"radiolog/internal/ratelimit"
	"radiolog/provider"
	"radiolog/radio"
)

// onBroadcast returns the callback registered with the provider. Recognised
// broadcasts join the insertion channel like any producer event; malformed
// ones are counted and dropped. A broadcast that gets past the closed check is
// appended before Stop returns.
func (a *Aggregator) onBroadcast(ctx context.Context) provider.BroadcastCallback {
	dropLog := ratelimit.NewCounter(time.Minute)
	entry := logrus.WithField("component", "broadcast")
	return func(b provider.Broadcast) {
		if ctx.Err() != nil {
			return
		}
		ev, ok := parseBroadcast(b)
		if !ok {
			a.stats.IncrementDroppedBroadcast()
			dropLog.Warnf(entry, "Aggregator: discarding malformed broadcast %q", b.Action)
			return
		}
		a.inMu.RLock()
		defer a.inMu.RUnlock()
		if a.inClosed {
			return
		}
		a.in <- ev
	}
}

// parseBroadcast validates the action and the subscription-index extra. A
// missing index means the broadcast is not tied to a subscription; an index
// that does not parse makes the broadcast malformed.
func parseBroadcast(b provider.Broadcast) (radio.Event, bool) {
	action, ok := radio.ParseBroadcastAction(strings.TrimSpace(b.Action))
	if !ok {
		return radio.Event{}, false
	}
	subID := radio.DefaultSubscription
	if raw, present := b.Extras[radio.ExtraSubscriptionIndex]; present {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return radio.Event{}, false
		}
		subID = n
	}
	extras := make(map[string]string, len(b.Extras))
	for k, v := range b.Extras {
		extras[k] = v
	}
	return radio.NewEvent(subID, radio.BroadcastReceived{Action: action, Extras: extras}), true
}
