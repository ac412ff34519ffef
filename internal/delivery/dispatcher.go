package delivery

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Dispatcher runs an ordered strategy chain. The first success wins.
type Dispatcher struct {
	strategies []Strategy
	limiter    *rate.Limiter
	log        *zap.Logger
}

// NewDispatcher builds the channel then direct chain over t. perSecond paces
// outbound sends across all subscriptions; zero disables pacing.
func NewDispatcher(t Transport, perSecond int, log *zap.Logger) *Dispatcher {
	return NewDispatcherWith(log, perSecond, ChannelStrategy{Transport: t}, DirectStrategy{Transport: t})
}

func NewDispatcherWith(log *zap.Logger, perSecond int, strategies ...Strategy) *Dispatcher {
	d := &Dispatcher{strategies: strategies, log: log}
	if perSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
	return d
}

// Deliver reports whether any strategy succeeded. Failures are logged, never returned.
func (d *Dispatcher) Deliver(ctx context.Context, t Target, msg Message) bool {
	fields := []zap.Field{
		zap.String("subscriptionId", t.SubscriptionID),
		zap.String("userId", t.UserID),
		zap.String("mode", string(t.Mode)),
		zap.String("channelId", t.ChannelID),
	}
	for _, s := range d.strategies {
		if !s.Applicable(t) {
			continue
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				d.log.Warn("delivery aborted", append(fields, zap.Error(err))...)
				return false
			}
		}
		if err := s.Deliver(ctx, t, msg); err != nil {
			d.log.Warn("delivery strategy failed",
				append(fields, zap.String("strategy", s.Name()), zap.Error(err))...)
			continue
		}
		d.log.Debug("reminder delivered", append(fields, zap.String("strategy", s.Name()))...)
		return true
	}
	d.log.Error("reminder not delivered", fields...)
	return false
}
