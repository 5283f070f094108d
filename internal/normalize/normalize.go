package normalize

import (
	"context"

	"redgrab/internal/constants"
	"redgrab/internal/logger"
	"redgrab/pkg/invoke"
)

// Fetcher retrieves the full message body for a summary notification that
// only carries conversation coordinates.
type Fetcher interface {
	FetchMessage(ctx context.Context, chatType int, peerUID, msgSeq string) (map[string]interface{}, error)
}

// Normalizer reduces the three inbound payload shapes into a Message:
// a canonical single message, a batch carrying a message list, or a
// recent-contact summary that requires fetching the message body.
type Normalizer struct {
	fetcher Fetcher
	log     logger.Logger
}

func NewNormalizer(fetcher Fetcher, log logger.Logger) *Normalizer {
	return &Normalizer{
		fetcher: fetcher,
		log:     log,
	}
}

// Normalize returns nil when the payload matches none of the known shapes.
func (n *Normalizer) Normalize(ctx context.Context, payload map[string]interface{}) *Message {
	if payload == nil {
		return nil
	}

	if looksLikeMessage(payload) {
		return parseMessage(payload)
	}

	msgs := asSlice(payload["msgList"])
	if msgs == nil {
		msgs = asSlice(payload["msgs"])
	}
	if len(msgs) > 0 {
		return n.fromBatch(msgs)
	}

	if changed := asSlice(payload["changedRecentContactLists"]); len(changed) > 0 {
		return n.fromSummary(ctx, changed)
	}

	return nil
}

// fromBatch prefers the first entry that carries a wallet element and
// falls back to the first message otherwise.
func (n *Normalizer) fromBatch(msgs []interface{}) *Message {
	var first *Message
	for _, raw := range msgs {
		m := asMap(raw)
		if m == nil {
			continue
		}
		msg := parseMessage(m)
		if msg == nil {
			continue
		}
		if first == nil {
			first = msg
		}
		if _, ok := msg.Envelope(); ok {
			return msg
		}
	}
	return first
}

func (n *Normalizer) fromSummary(ctx context.Context, changed []interface{}) *Message {
	group := asMap(changed[0])
	if group == nil {
		return nil
	}
	list := asSlice(group["changedList"])
	if len(list) == 0 {
		return nil
	}
	c := asMap(list[0])
	if c == nil {
		return nil
	}

	chatType := asInt(c["chatType"])
	if chatType == 0 {
		chatType = asInt(c["sessionType"])
	}

	msg := &Message{
		ChatType:   chatType,
		PeerUID:    asString(c["peerUid"]),
		PeerName:   asString(c["peerName"]),
		MsgSeq:     asString(c["msgSeq"]),
		SenderUIN:  asString(c["senderUin"]),
		SenderName: senderName(c),
	}

	if n.fetcher == nil {
		return msg
	}

	res := invoke.WithDeadline(ctx, constants.MessageFetchTimeout, func(ctx context.Context) (map[string]interface{}, error) {
		return n.fetcher.FetchMessage(ctx, msg.ChatType, msg.PeerUID, msg.MsgSeq)
	})
	if !res.OK {
		n.log.DebugwCtx(ctx, "Message fetch for summary failed, keeping shallow record",
			"peer_uid", msg.PeerUID,
			"msg_seq", msg.MsgSeq,
			"error", res.Err,
		)
		return msg
	}

	if fetched := asSlice(res.Value["msgs"]); len(fetched) > 0 {
		if full := asMap(fetched[0]); full != nil {
			if elements := parseElements(full["elements"]); elements != nil {
				msg.Elements = elements
			}
		}
	}

	return msg
}

func looksLikeMessage(m map[string]interface{}) bool {
	if _, ok := m["elements"].([]interface{}); !ok {
		return false
	}
	if _, ok := m["msgSeq"]; !ok {
		return false
	}
	if _, ok := m["peerUid"]; !ok {
		return false
	}
	_, ok := m["chatType"]
	return ok
}

func parseMessage(m map[string]interface{}) *Message {
	return &Message{
		ChatType:   asInt(m["chatType"]),
		PeerUID:    asString(m["peerUid"]),
		PeerName:   asString(m["peerName"]),
		MsgSeq:     asString(m["msgSeq"]),
		SenderUIN:  asString(m["senderUin"]),
		SenderName: senderName(m),
		Elements:   parseElements(m["elements"]),
	}
}

func parseElements(v interface{}) []map[string]interface{} {
	raw := asSlice(v)
	if raw == nil {
		return nil
	}
	elements := make([]map[string]interface{}, 0, len(raw))
	for _, e := range raw {
		if em := asMap(e); em != nil {
			elements = append(elements, em)
		}
	}
	return elements
}

func senderName(m map[string]interface{}) string {
	for _, key := range []string{"sendRemarkName", "sendMemberName", "sendNickName"} {
		if name := asString(m[key]); name != "" {
			return name
		}
	}
	return ""
}
