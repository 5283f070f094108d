package identity

import (
	"context"
	"strconv"
	"sync"

	"redgrab/internal/constants"
	"redgrab/internal/logger"
	"redgrab/pkg/errors"
	"redgrab/pkg/invoke"
	"redgrab/pkg/metrics"
)

// Identity is the account the claims are issued for. From records where
// it was learned: "seed", "cache", or "probe:<command>".
type Identity struct {
	UIN      string
	UID      string
	NickName string
	From     string
}

// Invoker issues a single request/response call against the host.
type Invoker interface {
	Invoke(ctx context.Context, command string, body map[string]interface{}) (map[string]interface{}, error)
}

// Probe names one host command that may reveal the logged-in account.
type Probe struct {
	Command string
}

// DefaultProbes lists the account-revealing commands in the order they
// are tried. The first probe returning a usable UIN wins.
func DefaultProbes() []Probe {
	return []Probe{
		{Command: "nodeIKernelLoginService/getCurrentUin"},
		{Command: "nodeIKernelLoginService/getLoginInfo"},
		{Command: "nodeIKernelLoginService/getUinLoginInfo"},
		{Command: "nodeIKernelProfileService/getSelfProfileSimple"},
		{Command: "nodeIKernelProfileService/getSelfInfo"},
		{Command: "nodeIKernelAccountService/getAccountInfo"},
		{Command: "nodeIKernelFriendService/getSelfInfo"},
	}
}

// Resolver caches the resolved identity so the probe chain runs at most
// once per process, no matter how many events race for it.
type Resolver struct {
	mu      sync.Mutex
	cached  *Identity
	invoker Invoker
	probes  []Probe
	log     logger.Logger
}

func NewResolver(invoker Invoker, probes []Probe, log logger.Logger) *Resolver {
	if len(probes) == 0 {
		probes = DefaultProbes()
	}
	return &Resolver{
		invoker: invoker,
		probes:  probes,
		log:     log,
	}
}

// Seed installs an operator-provided identity, skipping probing entirely.
func (r *Resolver) Seed(id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id.From = "seed"
	r.cached = &id
}

// Resolve returns the cached identity or runs the probe chain. The lock
// is held across probing so concurrent callers share one chain run.
func (r *Resolver) Resolve(ctx context.Context) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		id := *r.cached
		id.From = "cache"
		return id, nil
	}

	for _, probe := range r.probes {
		res := invoke.WithDeadline(ctx, constants.IdentityProbeTimeout, func(ctx context.Context) (map[string]interface{}, error) {
			return r.invoker.Invoke(ctx, probe.Command, map[string]interface{}{})
		})
		if !res.OK {
			metrics.IdentityProbesTotal.WithLabelValues(probe.Command, "error").Inc()
			r.log.DebugwCtx(ctx, "Identity probe failed",
				"command", probe.Command,
				"error", res.Err,
			)
			continue
		}

		id, ok := extract(res.Value)
		if !ok {
			metrics.IdentityProbesTotal.WithLabelValues(probe.Command, "empty").Inc()
			continue
		}

		metrics.IdentityProbesTotal.WithLabelValues(probe.Command, "hit").Inc()
		id.From = "probe:" + probe.Command
		r.cached = &id

		r.log.InfowCtx(ctx, "Resolved self identity",
			"uin", id.UIN,
			"from", id.From,
		)
		return id, nil
	}

	return Identity{}, errors.ErrNotFound.WithDetail("resource", "self_identity")
}

// Reset drops the cached identity, forcing the next Resolve to re-probe.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
}

// extract checks the known nesting spots for an account object carrying
// a non-zero UIN.
func extract(data map[string]interface{}) (Identity, bool) {
	candidates := []map[string]interface{}{}
	for _, key := range []string{"loginInfo", "profile", "accountInfo", "selfInfo"} {
		if m, ok := data[key].(map[string]interface{}); ok {
			candidates = append(candidates, m)
		}
	}
	candidates = append(candidates, data)

	for _, cand := range candidates {
		uin := fieldString(cand, "uin")
		if uin == "" || uin == "0" {
			continue
		}

		uid := fieldString(cand, "uid")
		if uid == "" {
			uid = fieldString(cand, "tinyId")
		}

		nick := fieldString(cand, "nickName")
		if nick == "" {
			nick = fieldString(cand, "nickname")
		}

		return Identity{UIN: uin, UID: uid, NickName: nick}, true
	}

	return Identity{}, false
}

func fieldString(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}
