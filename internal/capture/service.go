package capture

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"redgrab/internal/constants"
	"redgrab/internal/cooldown"
	"redgrab/internal/dedup"
	"redgrab/internal/hostclient"
	"redgrab/internal/identity"
	"redgrab/internal/logger"
	"redgrab/internal/normalize"
	"redgrab/internal/policy"
	"redgrab/internal/settings"
	"redgrab/internal/stats"
	"redgrab/pkg/invoke"
	"redgrab/pkg/logging"
	"redgrab/pkg/metrics"
)

// Service drives the full pipeline for one inbound host event: shape
// normalization, dedup, policy admission, then either a notify-only
// message or the claim sequence. Handle never returns an error; every
// failure is terminal for that event only.
type Service struct {
	client   hostclient.Client
	norm     *normalize.Normalizer
	dedup    dedup.Store
	filter   *policy.Filter
	resolver *identity.Resolver
	cooldown *cooldown.Manager
	store    settings.Store
	stats    stats.Reporter
	log      logger.Logger

	dedupOnError string
	cooldownDur  time.Duration

	// Injectable for deterministic tests.
	randInt func(n int) int
	sleep   func(ctx context.Context, d time.Duration)

	activateOnce sync.Once
}

type Options struct {
	Client       hostclient.Client
	Normalizer   *normalize.Normalizer
	Dedup        dedup.Store
	Filter       *policy.Filter
	Resolver     *identity.Resolver
	Cooldown     *cooldown.Manager
	Store        settings.Store
	Stats        stats.Reporter
	Logger       logger.Logger
	DedupOnError string
	CooldownDur  time.Duration
}

func NewService(opts Options) *Service {
	s := &Service{
		client:       opts.Client,
		norm:         opts.Normalizer,
		dedup:        opts.Dedup,
		filter:       opts.Filter,
		resolver:     opts.Resolver,
		cooldown:     opts.Cooldown,
		store:        opts.Store,
		stats:        opts.Stats,
		log:          opts.Logger,
		dedupOnError: opts.DedupOnError,
		cooldownDur:  opts.CooldownDur,
		randInt:      rand.Intn,
		sleep:        sleepCtx,
	}
	if s.dedupOnError == "" {
		s.dedupOnError = constants.FallbackDeny
	}
	if s.cooldownDur <= 0 {
		s.cooldownDur = constants.DefaultCooldownDuration
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Handle processes one inbound message event end to end.
func (s *Service) Handle(ctx context.Context, payload map[string]interface{}) {
	ctx = logging.WithEventID(ctx, uuid.NewString())

	msg := s.norm.Normalize(ctx, payload)
	if msg == nil {
		return
	}
	ctx = logging.WithPeerUID(ctx, msg.PeerUID)

	env, ok := msg.Envelope()
	if !ok {
		return
	}
	metrics.EnvelopesSeenTotal.Inc()

	s.log.InfowCtx(ctx, "Envelope received",
		"bill_no", env.BillNo,
		"title", env.Title,
		"chat_type", msg.ChatType,
	)

	// A disabled listener must not consume the bill number: the dedup
	// mark happens only for events the pipeline will act on, so the
	// envelope stays claimable after re-enabling.
	pol := settings.LoadSafe(ctx, s.store)
	if !pol.IsActive {
		return
	}

	// The mark precedes every suspension point in the claim and notify
	// branches, so interleaved deliveries of the same envelope can never
	// both pass.
	first, err := s.dedup.CheckAndMark(ctx, env.BillNo)
	if err != nil {
		metrics.DedupChecksTotal.WithLabelValues("error").Inc()
		if s.dedupOnError != constants.FallbackAllow {
			metrics.FallbackUsageTotal.WithLabelValues("dedup", "deny", "store_error").Inc()
			s.log.WarnwCtx(ctx, "Dedup store failed, dropping envelope",
				"bill_no", env.BillNo,
				"error", err,
			)
			return
		}
		metrics.FallbackUsageTotal.WithLabelValues("dedup", "allow", "store_error").Inc()
		s.log.WarnwCtx(ctx, "Dedup store failed, proceeding without dedup",
			"bill_no", env.BillNo,
			"error", err,
		)
	} else if !first {
		metrics.DedupChecksTotal.WithLabelValues("duplicate").Inc()
		s.log.DebugwCtx(ctx, "Duplicate envelope dropped", "bill_no", env.BillNo)
		return
	} else {
		metrics.DedupChecksTotal.WithLabelValues("first").Inc()
	}

	verdict := s.filter.Admit(ctx, msg, env, pol)
	if !verdict.Allowed {
		s.log.DebugwCtx(ctx, "Envelope rejected by policy",
			"bill_no", env.BillNo,
			"reason", verdict.Reason,
		)
		return
	}

	if pol.NotificationOnly {
		s.notifyOnly(ctx, msg, pol)
		return
	}

	s.claim(ctx, msg, env, pol)
}

// notifyOnly announces the envelope without claiming it. An explicit
// Send2Who target needs no self identity; only the message-self fallback
// does.
func (s *Service) notifyOnly(ctx context.Context, msg *normalize.Message, pol settings.Policy) {
	target, chatType, ok := s.notifyTarget(ctx, pol)
	if !ok {
		s.log.WarnwCtx(ctx, "Notify-only skipped: no target and self identity unavailable")
		return
	}

	text := fmt.Sprintf("[Grab RedBag]发现群\"%s(%s)\"成员\"%s(%s)\"红包！",
		msg.PeerName, msg.PeerUID, msg.SenderName, msg.SenderUIN)

	res := invoke.WithDeadline(ctx, constants.NotifyTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, hostclient.SendText(ctx, s.client, chatType, target, text)
	})
	if !res.OK {
		s.log.WarnwCtx(ctx, "Notify-only send failed", "error", res.Err)
	}
}

// notifyTarget resolves where notifications go: the configured Send2Who
// entry, or the self account when none is configured.
func (s *Service) notifyTarget(ctx context.Context, pol settings.Policy) (string, int, bool) {
	if len(pol.Send2Who) > 0 {
		target := pol.Send2Who[0]
		chatType := constants.ChatTypeGroup
		if target == "1" {
			chatType = constants.ChatTypeNotify
		}
		return target, chatType, true
	}

	self, err := s.resolver.Resolve(ctx)
	if err != nil {
		return "", 0, false
	}
	target := self.UID
	if target == "" {
		target = self.UIN
	}
	return target, constants.ChatTypeSingle, target != ""
}

func (s *Service) claim(ctx context.Context, msg *normalize.Message, env *normalize.Envelope, pol settings.Policy) {
	if pol.UseRandomDelay {
		s.sleep(ctx, s.randomDelay(pol.DelayLowerBound, pol.DelayUpperBound))
	}

	// Passcode envelopes need their passphrase posted first. A failed
	// send is not fatal: the claim may still succeed.
	if env.IsPasscode() {
		res := invoke.WithDeadline(ctx, constants.PasscodeSendTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, hostclient.SendText(ctx, s.client, msg.ChatType, msg.PeerUID, env.Title)
		})
		if !res.OK {
			s.log.WarnwCtx(ctx, "Passcode send failed", "bill_no", env.BillNo, "error", res.Err)
		}
	}

	self, err := s.resolver.Resolve(ctx)
	if err != nil {
		s.log.WarnwCtx(ctx, "Self identity unavailable, skipping claim", "bill_no", env.BillNo, "error", err)
		return
	}

	start := time.Now()
	res := invoke.WithDeadline(ctx, constants.ClaimTimeout, func(ctx context.Context) (map[string]interface{}, error) {
		return hostclient.GrabRedBag(ctx, s.client, hostclient.GrabRequest{
			RecvUIN:  self.UIN,
			RecvType: msg.ChatType,
			PeerUID:  msg.PeerUID,
			Name:     self.NickName,
			PCBody:   env.PCBody,
			Wishing:  env.Title,
			MsgSeq:   msg.MsgSeq,
			Index:    env.Index,
		})
	})
	if !res.OK {
		metrics.ClaimsTotal.WithLabelValues("error").Inc()
		metrics.ObserveClaimDuration(time.Since(start), "error")
		s.log.WarnwCtx(ctx, "Claim call failed", "bill_no", env.BillNo, "error", res.Err)
		return
	}

	rsp := getMap(res.Value, "grabRedBagRsp")
	amountStr := getString(getMap(rsp, "recvdOrder"), "amount")

	if amountStr == "0" {
		metrics.ClaimsTotal.WithLabelValues("exhausted").Inc()
		metrics.ObserveClaimDuration(time.Since(start), "exhausted")
		s.log.InfowCtx(ctx, "Envelope already exhausted", "bill_no", env.BillNo)
		if pol.UseSelfNotice {
			text := fmt.Sprintf("[Grab RedBag] 抢\"%s(%s)\"成员\"%s(%s)\"红包失败：已被领完",
				msg.PeerName, msg.PeerUID, msg.SenderName, msg.SenderUIN)
			s.sendSelfNotice(ctx, pol, self, text)
		}
		return
	}

	amountMinor, _ := strconv.Atoi(amountStr)
	amount := float64(amountMinor) / constants.MinorUnitsPerMajor

	metrics.ClaimsTotal.WithLabelValues("ok").Inc()
	metrics.ObserveClaimDuration(time.Since(start), "ok")
	s.log.InfowCtx(ctx, "Envelope claimed",
		"bill_no", env.BillNo,
		"amount", amount,
	)

	// A one-cent win is the telltale of a detection throttle. Back off
	// from this conversation for a while.
	if amount == 0.01 && pol.AntiDetect {
		s.cooldown.Suppress(msg.PeerUID, s.cooldownDur)
		s.log.InfowCtx(ctx, "Conversation placed under cooldown",
			"peer_uid", msg.PeerUID,
			"duration", s.cooldownDur,
		)
	}

	if pol.UseSelfNotice {
		tmpl := pol.ReceiveMsg
		if tmpl == "" {
			tmpl = settings.DefaultReceiveMsg
		}
		text := ExpandTemplate(tmpl, TemplateVars{
			PeerName:   msg.PeerName,
			PeerUID:    msg.PeerUID,
			SenderName: msg.SenderName,
			SenderUIN:  msg.SenderUIN,
			Amount:     amount,
		})
		s.sendSelfNotice(ctx, pol, self, text)
	}

	s.sayThanks(ctx, msg, pol, self)

	// Statistics are fire-and-forget: a slow policy file must not hold
	// up the event pipeline.
	statsCtx := context.WithoutCancel(ctx)
	go s.stats.AddGrabbed(statsCtx, 1)
	go s.stats.AddAmount(statsCtx, amount)
}

func (s *Service) sendSelfNotice(ctx context.Context, pol settings.Policy, self identity.Identity, text string) {
	target := ""
	chatType := constants.ChatTypeSingle
	if len(pol.Send2Who) > 0 {
		target = pol.Send2Who[0]
		chatType = constants.ChatTypeGroup
		if target == "1" {
			chatType = constants.ChatTypeNotify
		}
	} else {
		target = self.UID
		if target == "" {
			target = self.UIN
		}
	}
	if target == "" {
		return
	}

	res := invoke.WithDeadline(ctx, constants.NotifyTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, hostclient.SendText(ctx, s.client, chatType, target, text)
	})
	if !res.OK {
		s.log.WarnwCtx(ctx, "Self notice send failed", "error", res.Err)
	}
}

// sayThanks posts a random thank-you message back into the conversation,
// unless the envelope came from the self account.
func (s *Service) sayThanks(ctx context.Context, msg *normalize.Message, pol settings.Policy, self identity.Identity) {
	if len(pol.ThanksMsgs) == 0 {
		return
	}
	if msg.SenderUIN == "" || self.UIN == "" || msg.SenderUIN == self.UIN {
		return
	}

	if pol.UseRandomDelay {
		s.sleep(ctx, s.randomDelay(pol.DelayLowerBoundForSend, pol.DelayUpperBoundForSend))
	}

	text := pol.ThanksMsgs[s.randInt(len(pol.ThanksMsgs))]
	res := invoke.WithDeadline(ctx, constants.ThanksSendTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, hostclient.SendText(ctx, s.client, msg.ChatType, msg.PeerUID, text)
	})
	if !res.OK {
		s.log.WarnwCtx(ctx, "Thanks send failed", "error", res.Err)
	}
}

func (s *Service) randomDelay(lower, upper int) time.Duration {
	span := upper - lower + 1
	if span < 1 {
		span = 1
	}
	d := s.randInt(span) + lower
	if d < 0 {
		d = 0
	}
	return time.Duration(d) * time.Millisecond
}

// HandleGroupListUpdate activates every known group once per process so
// their envelope events start flowing without anyone opening the chats.
func (s *Service) HandleGroupListUpdate(ctx context.Context, payload map[string]interface{}) {
	s.activateOnce.Do(func() {
		pol := settings.LoadSafe(ctx, s.store)
		if !pol.IsActive || !pol.IsActiveAllGroups {
			return
		}

		groups := getSlice(payload, "groupList")
		for _, raw := range groups {
			group, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			code := getString(group, "groupCode")
			if code == "" {
				continue
			}
			if err := hostclient.ActivateChat(ctx, s.client, constants.ChatTypeGroup, code); err != nil {
				s.log.WarnwCtx(ctx, "Failed to activate group chat",
					"group_code", code,
					"error", err,
				)
				continue
			}
			s.log.InfowCtx(ctx, "Activated group chat",
				"group_name", getString(group, "groupName"),
				"group_code", code,
			)
		}
	})
}

// EnableListener turns event handling on by flipping the policy flag.
func (s *Service) EnableListener(ctx context.Context) error {
	_, err := s.store.Update(ctx, func(pol *settings.Policy) {
		pol.IsActive = true
	})
	return err
}

// DisableListener turns event handling off. Events keep arriving but are
// dropped at the policy gate.
func (s *Service) DisableListener(ctx context.Context) error {
	_, err := s.store.Update(ctx, func(pol *settings.Policy) {
		pol.IsActive = false
	})
	return err
}

func getMap(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]interface{})
	return v
}

func getSlice(m map[string]interface{}, key string) []interface{} {
	if m == nil {
		return nil
	}
	v, _ := m[key].([]interface{})
	return v
}

func getString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}
