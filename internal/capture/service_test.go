package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redgrab/internal/cooldown"
	"redgrab/internal/dedup"
	"redgrab/internal/hostclient"
	"redgrab/internal/identity"
	"redgrab/internal/logger"
	"redgrab/internal/normalize"
	"redgrab/internal/policy"
	"redgrab/internal/settings"
)

type recordedCall struct {
	Command string
	Body    map[string]interface{}
}

type fakeHost struct {
	mu        sync.Mutex
	calls     []recordedCall
	responses map[string]map[string]interface{}
}

func newFakeHost() *fakeHost {
	return &fakeHost{responses: make(map[string]map[string]interface{})}
}

func (f *fakeHost) Invoke(ctx context.Context, command string, body map[string]interface{}) (map[string]interface{}, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Command: command, Body: body})
	f.mu.Unlock()
	if rsp, ok := f.responses[command]; ok {
		return rsp, nil
	}
	return map[string]interface{}{}, nil
}

func (f *fakeHost) Subscribe(handler hostclient.EventHandler) error { return nil }
func (f *fakeHost) Ping(ctx context.Context) error                  { return nil }
func (f *fakeHost) Close() error                                    { return nil }

func (f *fakeHost) callsFor(command string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.Command == command {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeHost) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type memPolicyStore struct {
	mu  sync.Mutex
	pol settings.Policy
}

func newMemPolicyStore(pol settings.Policy) *memPolicyStore {
	return &memPolicyStore{pol: pol}
}

func (s *memPolicyStore) Load(ctx context.Context) (settings.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pol, nil
}

func (s *memPolicyStore) Save(ctx context.Context, pol settings.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pol = pol
	return nil
}

func (s *memPolicyStore) Update(ctx context.Context, fn func(pol *settings.Policy)) (settings.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.pol)
	return s.pol, nil
}

type fakeStats struct {
	mu      sync.Mutex
	grabbed int
	amount  float64
}

func (f *fakeStats) AddGrabbed(ctx context.Context, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grabbed += n
}

func (f *fakeStats) AddAmount(ctx context.Context, amount float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amount += amount
}

func (f *fakeStats) Totals(ctx context.Context) (int, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grabbed, f.amount, nil
}

type testEnv struct {
	host    *fakeHost
	store   *memPolicyStore
	stats   *fakeStats
	cool    *cooldown.Manager
	service *Service
}

func newTestEnv(t *testing.T, pol settings.Policy) *testEnv {
	t.Helper()

	host := newFakeHost()
	store := newMemPolicyStore(pol)
	st := &fakeStats{}
	cool := cooldown.NewManager()
	log := logger.NopLogger()

	resolver := identity.NewResolver(host, nil, log)
	resolver.Seed(identity.Identity{UIN: "10001", UID: "u_self", NickName: "self"})

	svc := NewService(Options{
		Client:     host,
		Normalizer: normalize.NewNormalizer(hostclient.NewMessageFetcher(host), log),
		Dedup:      dedup.NewMemoryStore(),
		Filter:     policy.NewFilter(cool, nil, log),
		Resolver:   resolver,
		Cooldown:   cool,
		Store:      store,
		Stats:      st,
		Logger:     log,
	})
	svc.randInt = func(n int) int { return 0 }
	svc.sleep = func(ctx context.Context, d time.Duration) {}

	return &testEnv{host: host, store: store, stats: st, cool: cool, service: svc}
}

func envelopeMessage(billNo string, redChannel int) map[string]interface{} {
	return map[string]interface{}{
		"chatType":     float64(2),
		"peerUid":      "grp-1",
		"peerName":     "team",
		"msgSeq":       "1001",
		"senderUin":    "20002",
		"sendNickName": "bob",
		"elements": []interface{}{
			map[string]interface{}{
				"elementType": float64(9),
				"walletElement": map[string]interface{}{
					"billNo":      billNo,
					"title":       "恭喜发财",
					"pcBody":      []interface{}{float64(1), float64(2)},
					"stringIndex": "idx",
					"redChannel":  float64(redChannel),
				},
			},
		},
	}
}

func grabResponse(amount string) map[string]interface{} {
	return map[string]interface{}{
		"grabRedBagRsp": map[string]interface{}{
			"recvdOrder": map[string]interface{}{
				"amount": amount,
			},
		},
	}
}

func waitStats(t *testing.T, st *fakeStats, grabbed int, amount float64) {
	t.Helper()
	require.Eventually(t, func() bool {
		g, a, _ := st.Totals(context.Background())
		return g == grabbed && a == amount
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleClaimsEnvelope(t *testing.T) {
	env := newTestEnv(t, settings.DefaultPolicy())
	env.host.responses[hostclient.CmdGrabRedBag] = grabResponse("150")

	env.service.Handle(context.Background(), envelopeMessage("A1", 0))

	grabs := env.host.callsFor(hostclient.CmdGrabRedBag)
	require.Len(t, grabs, 1)

	req := grabs[0].Body["grabRedBagReq"].(map[string]interface{})
	assert.Equal(t, "10001", req["recvUin"])
	assert.Equal(t, 2, req["recvType"])
	assert.Equal(t, "grp-1", req["peerUid"])
	assert.Equal(t, "恭喜发财", req["wishing"])
	assert.Equal(t, "1001", req["msgSeq"])
	assert.Equal(t, []byte{1, 2}, req["pcBody"])
	assert.Equal(t, []byte("idx"), req["index"])

	waitStats(t, env.stats, 1, 1.50)
}

func TestHandleDuplicateClaimsOnce(t *testing.T) {
	env := newTestEnv(t, settings.DefaultPolicy())
	env.host.responses[hostclient.CmdGrabRedBag] = grabResponse("150")

	env.service.Handle(context.Background(), envelopeMessage("A1", 0))
	env.service.Handle(context.Background(), envelopeMessage("A1", 0))

	assert.Len(t, env.host.callsFor(hostclient.CmdGrabRedBag), 1)
}

func TestHandleNoEnvelopeNoCalls(t *testing.T) {
	env := newTestEnv(t, settings.DefaultPolicy())

	env.service.Handle(context.Background(), map[string]interface{}{
		"chatType": float64(2),
		"peerUid":  "grp-1",
		"msgSeq":   "1001",
		"elements": []interface{}{
			map[string]interface{}{"elementType": float64(1)},
		},
	})

	assert.Zero(t, env.host.totalCalls())
}

func TestHandleInactivePolicyDropsEverything(t *testing.T) {
	pol := settings.DefaultPolicy()
	pol.IsActive = false
	env := newTestEnv(t, pol)

	env.service.Handle(context.Background(), envelopeMessage("A1", 0))

	assert.Zero(t, env.host.totalCalls())
}

func TestHandleInactiveKeepsEnvelopeClaimable(t *testing.T) {
	pol := settings.DefaultPolicy()
	pol.IsActive = false
	env := newTestEnv(t, pol)
	env.host.responses[hostclient.CmdGrabRedBag] = grabResponse("150")

	// Delivered while disabled: dropped without consuming the bill number.
	env.service.Handle(context.Background(), envelopeMessage("A1", 0))
	assert.Zero(t, env.host.totalCalls())

	_, err := env.store.Update(context.Background(), func(p *settings.Policy) {
		p.IsActive = true
	})
	require.NoError(t, err)

	env.service.Handle(context.Background(), envelopeMessage("A1", 0))
	assert.Len(t, env.host.callsFor(hostclient.CmdGrabRedBag), 1)
}

func TestHandleNotifyOnlySendsWithoutClaiming(t *testing.T) {
	pol := settings.DefaultPolicy()
	pol.NotificationOnly = true
	env := newTestEnv(t, pol)

	env.service.Handle(context.Background(), envelopeMessage("A1", 0))

	sends := env.host.callsFor(hostclient.CmdSendMsg)
	require.Len(t, sends, 1)
	assert.Empty(t, env.host.callsFor(hostclient.CmdGrabRedBag))

	peer := sends[0].Body["peer"].(map[string]interface{})
	assert.Equal(t, 1, peer["chatType"])
	assert.Equal(t, "u_self", peer["peerUid"])
}

func TestNotifyOnlySend2WhoMapping(t *testing.T) {
	tests := []struct {
		name     string
		send2who []string
		wantPeer string
		wantType int
	}{
		{"group target", []string{"1"}, "1", 8},
		{"direct target", []string{"44444"}, "44444", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pol := settings.DefaultPolicy()
			pol.NotificationOnly = true
			pol.Send2Who = tt.send2who
			env := newTestEnv(t, pol)

			env.service.Handle(context.Background(), envelopeMessage("A1", 0))

			sends := env.host.callsFor(hostclient.CmdSendMsg)
			require.Len(t, sends, 1)
			peer := sends[0].Body["peer"].(map[string]interface{})
			assert.Equal(t, tt.wantPeer, peer["peerUid"])
			assert.Equal(t, tt.wantType, peer["chatType"])
		})
	}
}

func TestHandlePasscodeSendsTitleFirst(t *testing.T) {
	env := newTestEnv(t, settings.DefaultPolicy())
	env.host.responses[hostclient.CmdGrabRedBag] = grabResponse("150")

	env.service.Handle(context.Background(), envelopeMessage("A1", 32))

	sends := env.host.callsFor(hostclient.CmdSendMsg)
	require.Len(t, sends, 1)
	el := sends[0].Body["msgElements"].([]interface{})[0].(map[string]interface{})
	text := el["textElement"].(map[string]interface{})["content"]
	assert.Equal(t, "恭喜发财", text)

	require.Len(t, env.host.callsFor(hostclient.CmdGrabRedBag), 1)

	env.host.mu.Lock()
	firstCmd := env.host.calls[0].Command
	env.host.mu.Unlock()
	assert.Equal(t, hostclient.CmdSendMsg, firstCmd)
}

func TestHandleExhaustedEnvelope(t *testing.T) {
	pol := settings.DefaultPolicy()
	pol.UseSelfNotice = true
	pol.ThanksMsgs = []string{"thx"}
	env := newTestEnv(t, pol)
	env.host.responses[hostclient.CmdGrabRedBag] = grabResponse("0")

	env.service.Handle(context.Background(), envelopeMessage("A1", 0))

	sends := env.host.callsFor(hostclient.CmdSendMsg)
	require.Len(t, sends, 1)
	el := sends[0].Body["msgElements"].([]interface{})[0].(map[string]interface{})
	text := el["textElement"].(map[string]interface{})["content"].(string)
	assert.Contains(t, text, "已被领完")

	// No thanks and no statistics for an exhausted envelope.
	time.Sleep(50 * time.Millisecond)
	g, a, _ := env.stats.Totals(context.Background())
	assert.Zero(t, g)
	assert.Zero(t, a)
}

func TestHandleAntiDetectCooldown(t *testing.T) {
	pol := settings.DefaultPolicy()
	pol.AntiDetect = true
	env := newTestEnv(t, pol)
	env.host.responses[hostclient.CmdGrabRedBag] = grabResponse("1")

	env.service.Handle(context.Background(), envelopeMessage("A1", 0))
	waitStats(t, env.stats, 1, 0.01)

	assert.True(t, env.cool.IsSuppressed("grp-1"))

	// A fresh envelope from the suppressed conversation is rejected.
	env.service.Handle(context.Background(), envelopeMessage("A2", 0))
	assert.Len(t, env.host.callsFor(hostclient.CmdGrabRedBag), 1)
}

func TestHandleSelfNoticeTemplate(t *testing.T) {
	pol := settings.DefaultPolicy()
	pol.UseSelfNotice = true
	env := newTestEnv(t, pol)
	env.host.responses[hostclient.CmdGrabRedBag] = grabResponse("150")

	env.service.Handle(context.Background(), envelopeMessage("A1", 0))

	sends := env.host.callsFor(hostclient.CmdSendMsg)
	require.Len(t, sends, 1)
	el := sends[0].Body["msgElements"].([]interface{})[0].(map[string]interface{})
	text := el["textElement"].(map[string]interface{})["content"].(string)
	assert.Contains(t, text, "team(grp-1)")
	assert.Contains(t, text, "bob(20002)")
	assert.Contains(t, text, "1.50")
}

func TestHandleThanksMessage(t *testing.T) {
	pol := settings.DefaultPolicy()
	pol.ThanksMsgs = []string{"谢谢老板"}
	env := newTestEnv(t, pol)
	env.host.responses[hostclient.CmdGrabRedBag] = grabResponse("150")

	env.service.Handle(context.Background(), envelopeMessage("A1", 0))

	sends := env.host.callsFor(hostclient.CmdSendMsg)
	require.Len(t, sends, 1)
	peer := sends[0].Body["peer"].(map[string]interface{})
	assert.Equal(t, "grp-1", peer["peerUid"])
	assert.Equal(t, 2, peer["chatType"])
	el := sends[0].Body["msgElements"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "谢谢老板", el["textElement"].(map[string]interface{})["content"])
}

func TestHandleNoThanksForOwnEnvelope(t *testing.T) {
	pol := settings.DefaultPolicy()
	pol.ThanksMsgs = []string{"thx"}
	env := newTestEnv(t, pol)
	env.host.responses[hostclient.CmdGrabRedBag] = grabResponse("150")

	m := envelopeMessage("A1", 0)
	m["senderUin"] = "10001" // self
	env.service.Handle(context.Background(), m)

	assert.Empty(t, env.host.callsFor(hostclient.CmdSendMsg))
}

func TestHandleGroupListUpdateActivatesOnce(t *testing.T) {
	pol := settings.DefaultPolicy()
	pol.IsActiveAllGroups = true
	env := newTestEnv(t, pol)

	payload := map[string]interface{}{
		"groupList": []interface{}{
			map[string]interface{}{"groupCode": "g1", "groupName": "one"},
			map[string]interface{}{"groupCode": "g2", "groupName": "two"},
		},
	}

	env.service.HandleGroupListUpdate(context.Background(), payload)
	env.service.HandleGroupListUpdate(context.Background(), payload)

	assert.Len(t, env.host.callsFor(hostclient.CmdActivateChat), 2)
}

func TestHandleGroupListUpdateDisabled(t *testing.T) {
	env := newTestEnv(t, settings.DefaultPolicy())

	env.service.HandleGroupListUpdate(context.Background(), map[string]interface{}{
		"groupList": []interface{}{
			map[string]interface{}{"groupCode": "g1"},
		},
	})

	assert.Zero(t, env.host.totalCalls())
}

func TestListenerToggle(t *testing.T) {
	env := newTestEnv(t, settings.DefaultPolicy())
	ctx := context.Background()

	require.NoError(t, env.service.DisableListener(ctx))
	pol, err := env.store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, pol.IsActive)

	require.NoError(t, env.service.EnableListener(ctx))
	pol, err = env.store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, pol.IsActive)
}

func TestExpandTemplate(t *testing.T) {
	out := ExpandTemplate(settings.DefaultReceiveMsg, TemplateVars{
		PeerName:   "team",
		PeerUID:    "grp-1",
		SenderName: "bob",
		SenderUIN:  "20002",
		Amount:     1.5,
	})
	assert.Equal(t, `[Grab RedBag]来自群"team(grp-1)"成员:"bob(20002)" 收到金额 1.50 元`, out)
}
