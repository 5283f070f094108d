package policy

import (
	"context"
	"strconv"
	"strings"
	"time"

	"redgrab/internal/logger"
	"redgrab/internal/normalize"
	"redgrab/internal/settings"
	"redgrab/pkg/cel"
	"redgrab/pkg/metrics"
)

// Suppressor reports whether a conversation is under cooldown.
type Suppressor interface {
	IsSuppressed(peerUID string) bool
}

type Verdict struct {
	Allowed bool
	Reason  string
}

const (
	ReasonAdmit      = "admit"
	ReasonTimeMute   = "time_mute"
	ReasonCooldown   = "cooldown"
	ReasonAllowList  = "allow_list"
	ReasonBlockList  = "block_list"
	ReasonCustomRule = "custom_rule"
)

// Filter decides whether an envelope may be acted on. Checks run in a
// fixed order: time mute, cooldown, list rules, then custom rules.
type Filter struct {
	suppressor Suppressor
	eval       *cel.Evaluator
	clock      func() time.Time
	log        logger.Logger
}

func NewFilter(suppressor Suppressor, eval *cel.Evaluator, log logger.Logger) *Filter {
	return &Filter{
		suppressor: suppressor,
		eval:       eval,
		clock:      time.Now,
		log:        log,
	}
}

func NewFilterWithClock(suppressor Suppressor, eval *cel.Evaluator, log logger.Logger, clock func() time.Time) *Filter {
	f := NewFilter(suppressor, eval, log)
	f.clock = clock
	return f
}

func (f *Filter) Admit(ctx context.Context, msg *normalize.Message, env *normalize.Envelope, pol settings.Policy) Verdict {
	if pol.StopGrabByTime && inMuteRange(f.clock(), pol.StopGrabStart, pol.StopGrabEnd) {
		return f.verdict(false, ReasonTimeMute)
	}

	if f.suppressor != nil && f.suppressor.IsSuppressed(msg.PeerUID) {
		return f.verdict(false, ReasonCooldown)
	}

	switch pol.BlockType {
	case "1":
		passKW := len(pol.ListenKeyWords) == 0 || containsAny(env.Title, pol.ListenKeyWords)
		passGroup := len(pol.ListenGroups) == 0 || containsString(pol.ListenGroups, msg.PeerUID)
		passSender := len(pol.ListenQQs) == 0 || containsString(pol.ListenQQs, msg.SenderUIN)
		if !(passKW && passGroup && passSender) {
			return f.verdict(false, ReasonAllowList)
		}
	case "2":
		hit := containsAny(env.Title, pol.AvoidKeyWords) ||
			containsString(pol.AvoidGroups, msg.PeerUID) ||
			containsString(pol.AvoidQQs, msg.SenderUIN)
		if hit {
			return f.verdict(false, ReasonBlockList)
		}
	}

	if f.eval != nil && len(pol.CustomRules) > 0 {
		vars := ruleVars(msg, env)
		for _, rule := range pol.CustomRules {
			ok, err := f.eval.EvaluateRule(ctx, rule, vars)
			if err != nil {
				// Broken rules never block traffic.
				f.log.WarnwCtx(ctx, "Skipping invalid custom rule",
					"rule", rule,
					"error", err,
				)
				continue
			}
			if !ok {
				return f.verdict(false, ReasonCustomRule)
			}
		}
	}

	return f.verdict(true, ReasonAdmit)
}

func (f *Filter) verdict(allowed bool, reason string) Verdict {
	metrics.FilterVerdictsTotal.WithLabelValues(reason).Inc()
	return Verdict{Allowed: allowed, Reason: reason}
}

func ruleVars(msg *normalize.Message, env *normalize.Envelope) map[string]interface{} {
	return map[string]interface{}{
		"peer_uid":    msg.PeerUID,
		"peer_name":   msg.PeerName,
		"chat_type":   msg.ChatType,
		"sender_uin":  msg.SenderUIN,
		"sender_name": msg.SenderName,
		"title":       env.Title,
		"red_channel": env.RedChannel,
		"bill_no":     env.BillNo,
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

// inMuteRange reports whether now falls inside the [start, end) window,
// where start >= end means the window wraps past midnight.
func inMuteRange(now time.Time, start, end string) bool {
	s, okS := parseClock(start)
	e, okE := parseClock(end)
	if !okS || !okE {
		return false
	}

	cur := now.Hour()*60 + now.Minute()
	if s < e {
		return cur >= s && cur < e
	}
	return cur >= s || cur < e
}

func parseClock(v string) (int, bool) {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
