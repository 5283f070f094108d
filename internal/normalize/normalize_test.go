package normalize

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redgrab/internal/logger"
)

func walletMessage(billNo string) map[string]interface{} {
	return map[string]interface{}{
		"chatType":     float64(2),
		"peerUid":      "grp-1",
		"peerName":     "test group",
		"msgSeq":       "1001",
		"senderUin":    "20002",
		"sendNickName": "bob",
		"elements": []interface{}{
			map[string]interface{}{
				"elementType": float64(9),
				"walletElement": map[string]interface{}{
					"billNo":      billNo,
					"title":       "恭喜发财",
					"pcBody":      []interface{}{float64(1), float64(2), float64(3)},
					"stringIndex": "idx",
					"redChannel":  float64(0),
				},
			},
		},
	}
}

func TestNormalizeCanonicalMessage(t *testing.T) {
	n := NewNormalizer(nil, logger.NopLogger())

	msg := n.Normalize(context.Background(), walletMessage("B1"))
	require.NotNil(t, msg)
	assert.Equal(t, 2, msg.ChatType)
	assert.Equal(t, "grp-1", msg.PeerUID)
	assert.Equal(t, "bob", msg.SenderName)

	env, ok := msg.Envelope()
	require.True(t, ok)
	assert.Equal(t, "B1", env.BillNo)
	assert.Equal(t, "恭喜发财", env.Title)
	assert.Equal(t, []byte{1, 2, 3}, env.PCBody)
	assert.Equal(t, []byte("idx"), env.Index)
}

func TestNormalizeSenderNamePrecedence(t *testing.T) {
	n := NewNormalizer(nil, logger.NopLogger())

	m := walletMessage("B1")
	m["sendMemberName"] = "member"
	m["sendRemarkName"] = "remark"

	msg := n.Normalize(context.Background(), m)
	require.NotNil(t, msg)
	assert.Equal(t, "remark", msg.SenderName)
}

func TestNormalizeBatchPrefersEnvelopeBearer(t *testing.T) {
	n := NewNormalizer(nil, logger.NopLogger())

	plain := map[string]interface{}{
		"chatType": float64(2),
		"peerUid":  "grp-0",
		"msgSeq":   "999",
		"elements": []interface{}{
			map[string]interface{}{"elementType": float64(1)},
		},
	}

	msg := n.Normalize(context.Background(), map[string]interface{}{
		"msgList": []interface{}{plain, walletMessage("B2")},
	})
	require.NotNil(t, msg)
	assert.Equal(t, "grp-1", msg.PeerUID)

	_, ok := msg.Envelope()
	assert.True(t, ok)
}

func TestNormalizeBatchFallsBackToFirst(t *testing.T) {
	n := NewNormalizer(nil, logger.NopLogger())

	plain := map[string]interface{}{
		"chatType": float64(1),
		"peerUid":  "u-1",
		"msgSeq":   "5",
		"elements": []interface{}{},
	}

	msg := n.Normalize(context.Background(), map[string]interface{}{
		"msgs": []interface{}{plain},
	})
	require.NotNil(t, msg)
	assert.Equal(t, "u-1", msg.PeerUID)

	_, ok := msg.Envelope()
	assert.False(t, ok)
}

type fakeFetcher struct {
	response map[string]interface{}
	err      error
	delay    time.Duration
	calls    int
}

func (f *fakeFetcher) FetchMessage(ctx context.Context, chatType int, peerUID, msgSeq string) (map[string]interface{}, error) {
	f.calls++
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.response, f.err
}

func summaryPayload() map[string]interface{} {
	return map[string]interface{}{
		"changedRecentContactLists": []interface{}{
			map[string]interface{}{
				"changedList": []interface{}{
					map[string]interface{}{
						"msgSeq":       "1001",
						"peerUid":      "grp-1",
						"peerName":     "test group",
						"sessionType":  float64(2),
						"senderUin":    "20002",
						"sendNickName": "bob",
					},
				},
			},
		},
	}
}

func TestNormalizeSummaryFetchesElements(t *testing.T) {
	fetcher := &fakeFetcher{
		response: map[string]interface{}{
			"msgs": []interface{}{walletMessage("B3")},
		},
	}
	n := NewNormalizer(fetcher, logger.NopLogger())

	msg := n.Normalize(context.Background(), summaryPayload())
	require.NotNil(t, msg)
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, 2, msg.ChatType)

	env, ok := msg.Envelope()
	require.True(t, ok)
	assert.Equal(t, "B3", env.BillNo)
}

func TestNormalizeSummaryFetchFailureKeepsShallowRecord(t *testing.T) {
	fetcher := &fakeFetcher{err: fmt.Errorf("host gone")}
	n := NewNormalizer(fetcher, logger.NopLogger())

	msg := n.Normalize(context.Background(), summaryPayload())
	require.NotNil(t, msg)
	assert.Equal(t, "grp-1", msg.PeerUID)
	assert.Nil(t, msg.Elements)

	_, ok := msg.Envelope()
	assert.False(t, ok)
}

func TestNormalizeUnknownShape(t *testing.T) {
	n := NewNormalizer(nil, logger.NopLogger())

	assert.Nil(t, n.Normalize(context.Background(), nil))
	assert.Nil(t, n.Normalize(context.Background(), map[string]interface{}{"foo": "bar"}))
}

func TestEnvelopeBillNoFallback(t *testing.T) {
	m := walletMessage("")
	el := m["elements"].([]interface{})[0].(map[string]interface{})
	w := el["walletElement"].(map[string]interface{})
	w["authkey"] = "k9"

	n := NewNormalizer(nil, logger.NopLogger())
	msg := n.Normalize(context.Background(), m)
	require.NotNil(t, msg)

	env, ok := msg.Envelope()
	require.True(t, ok)
	assert.Equal(t, "1001:k9", env.BillNo)
}

func TestEnvelopeTitlePrecedence(t *testing.T) {
	m := walletMessage("B4")
	el := m["elements"].([]interface{})[0].(map[string]interface{})
	w := el["walletElement"].(map[string]interface{})
	w["receiver"] = map[string]interface{}{"title": " 手气王 "}

	n := NewNormalizer(nil, logger.NopLogger())
	msg := n.Normalize(context.Background(), m)
	require.NotNil(t, msg)

	env, ok := msg.Envelope()
	require.True(t, ok)
	assert.Equal(t, "手气王", env.Title)
}

func TestEnvelopeTitleDefault(t *testing.T) {
	m := walletMessage("B5")
	el := m["elements"].([]interface{})[0].(map[string]interface{})
	w := el["walletElement"].(map[string]interface{})
	w["title"] = "   "

	n := NewNormalizer(nil, logger.NopLogger())
	msg := n.Normalize(context.Background(), m)
	require.NotNil(t, msg)

	env, ok := msg.Envelope()
	require.True(t, ok)
	assert.Equal(t, "QQ红包", env.Title)
}

func TestToBytesCoercion(t *testing.T) {
	assert.Equal(t, []byte("abc"), toBytes("abc"))
	assert.Equal(t, []byte{5, 6}, toBytes([]interface{}{float64(5), float64(6)}))
	assert.Equal(t, []byte{10, 20, 30}, toBytes(map[string]interface{}{
		"2": float64(30),
		"0": float64(10),
		"1": float64(20),
	}))
	assert.Nil(t, toBytes(nil))
	assert.Nil(t, toBytes(map[string]interface{}{"foo": "bar"}))
}
