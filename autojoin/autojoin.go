// Package autojoin joins users to a configured channel list a short delay
// after they connect. The pending timer lives on the user as an extension
// value, so it is cancelled automatically when the user goes away and
// survives a restart via the persisted trigger time.
package autojoin

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatlink/ext/depreg"
	"github.com/chatlink/ext/extensible"
	"github.com/chatlink/ext/serial"
)

// TimerSettings is the fixed-size part of a pending join.
type TimerSettings struct {
	// Interval is the configured delay in seconds.
	Interval uint32
	// Trigger is the unix time the join is due.
	Trigger int64
}

// JoinTimer is a pending join attached to a user.
type JoinTimer struct {
	Settings TimerSettings
	Channels string

	cancel func()
}

// Scheduler runs a function after a delay. The returned cancel stops a
// pending run; calling it after the function has run is a no-op.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

// Joiner performs the actual channel joins for a user.
type Joiner interface {
	Join(user *extensible.Extensible, channels string)
}

// Plugin implements the delayed auto-join behaviour.
type Plugin struct {
	items *extensible.Manager
	deps  *depreg.Registry

	sched  Scheduler
	joiner Joiner

	// Timer holds the pending join on each user.
	Timer *extensible.SimpleItem[JoinTimer]
}

// New creates the plugin. The scheduler and joiner are resolved from deps at
// load time.
func New(items *extensible.Manager, deps *depreg.Registry) *Plugin {
	return &Plugin{items: items, deps: deps}
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return "autojoin" }

// Load resolves dependencies and registers the timer item.
func (p *Plugin) Load() error {
	if err := p.deps.Get(&p.sched, &p.joiner); err != nil {
		return fmt.Errorf("autojoin: %w", err)
	}
	p.Timer = extensible.NewSimpleItem[JoinTimer](
		"autojoin:timer", extensible.KindUser, p.Name(),
		&timerSerializer{plugin: p},
		func(jt *JoinTimer) {
			if jt.cancel != nil {
				jt.cancel()
			}
		},
	)
	return p.items.Register(p.Timer)
}

// Unload implements plugin.Plugin. The manager tears the timer item down,
// cancelling pending joins through the item deleter.
func (p *Plugin) Unload() error { return nil }

// ScheduleJoin arms a join of channels on user after delay, replacing any
// pending one.
func (p *Plugin) ScheduleJoin(user *extensible.Extensible, channels string, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	jt := &JoinTimer{
		Settings: TimerSettings{
			Interval: uint32(delay / time.Second),
			Trigger:  time.Now().Add(delay).Unix(),
		},
		Channels: channels,
	}
	p.arm(user, jt, delay)
	p.Timer.SetPtr(user, jt)
}

func (p *Plugin) arm(user *extensible.Extensible, jt *JoinTimer, delay time.Duration) {
	channels := jt.Channels
	jt.cancel = p.sched.AfterFunc(delay, func() {
		p.Timer.Unset(user)
		p.joiner.Join(user, channels)
		log.Debug().Str("channels", channels).Msg("auto-join fired")
	})
}

// timerSerializer encodes a JoinTimer as a settings/channel-list pair.
// Decoding re-arms the timer, which needs the containing user; without one
// the payload cannot be reconstructed.
type timerSerializer struct {
	plugin *Plugin
}

var pairSer = serial.Pair[TimerSettings, string]{
	First:  serial.Primitive[TimerSettings]{},
	Second: serial.String{},
}

func (s *timerSerializer) Serialize(f serial.Format, v JoinTimer, ctx serial.Context, w io.Writer) error {
	return pairSer.Serialize(f, serial.PairOf[TimerSettings, string]{First: v.Settings, Second: v.Channels}, ctx, w)
}

func (s *timerSerializer) Unserialize(f serial.Format, data []byte, ctx serial.Context) (JoinTimer, error) {
	pair, err := pairSer.Unserialize(f, data, ctx)
	if err != nil {
		return JoinTimer{}, err
	}

	user, _ := ctx.Host.(*extensible.Extensible)
	if user == nil {
		return JoinTimer{}, fmt.Errorf("%w: join timer needs its user to re-arm", serial.ErrDecode)
	}

	jt := JoinTimer{Settings: pair.First, Channels: pair.Second}
	delay := time.Until(time.Unix(jt.Settings.Trigger, 0))
	if delay < 0 {
		delay = 0
	}
	s.plugin.arm(user, &jt, delay)
	return jt, nil
}
