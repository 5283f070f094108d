package hostclient

import (
	"context"
)

// GrabRequest carries the claim parameters. PCBody and Index are echoed
// back exactly as they arrived in the envelope.
type GrabRequest struct {
	RecvUIN  string
	RecvType int
	PeerUID  string
	Name     string
	PCBody   []byte
	Wishing  string
	MsgSeq   string
	Index    []byte
}

func peerBody(chatType int, peerUID string) map[string]interface{} {
	return map[string]interface{}{
		"chatType": chatType,
		"peerUid":  peerUID,
		"guildId":  "",
	}
}

// SendText sends a plain text message into the given conversation.
func SendText(ctx context.Context, c Client, chatType int, peerUID, content string) error {
	_, err := c.Invoke(ctx, CmdSendMsg, map[string]interface{}{
		"msgId": "0",
		"peer":  peerBody(chatType, peerUID),
		"msgElements": []interface{}{
			map[string]interface{}{
				"elementType": 1,
				"elementId":   "",
				"textElement": map[string]interface{}{
					"content":  content,
					"atType":   0,
					"atUid":    "",
					"atTinyId": "",
					"atNtUid":  "",
				},
			},
		},
		"msgAttributeInfos": map[string]interface{}{},
	})
	return err
}

// FetchMessage retrieves the single message at msgSeq in a conversation.
func FetchMessage(ctx context.Context, c Client, chatType int, peerUID, msgSeq string) (map[string]interface{}, error) {
	return c.Invoke(ctx, CmdGetMsgs, map[string]interface{}{
		"peer": peerBody(chatType, peerUID),
		"msgSeqRange": map[string]interface{}{
			"begin": msgSeq,
			"end":   msgSeq,
		},
	})
}

// GrabRedBag issues the claim call and returns the raw host response.
func GrabRedBag(ctx context.Context, c Client, req GrabRequest) (map[string]interface{}, error) {
	return c.Invoke(ctx, CmdGrabRedBag, map[string]interface{}{
		"grabRedBagReq": map[string]interface{}{
			"recvUin":  req.RecvUIN,
			"recvType": req.RecvType,
			"peerUid":  req.PeerUID,
			"name":     req.Name,
			"pcBody":   req.PCBody,
			"wishing":  req.Wishing,
			"msgSeq":   req.MsgSeq,
			"index":    req.Index,
		},
	})
}

// ActivateChat opens a conversation so envelope events start flowing
// for it without the user ever focusing the chat.
func ActivateChat(ctx context.Context, c Client, chatType int, peerUID string) error {
	_, err := c.Invoke(ctx, CmdActivateChat, map[string]interface{}{
		"peer": peerBody(chatType, peerUID),
		"cnt":  0,
	})
	return err
}

// GroupList asks the host to report the current group roster. The result
// arrives as a follow-up group list update event.
func GroupList(ctx context.Context, c Client) (map[string]interface{}, error) {
	return c.Invoke(ctx, CmdGetGroupList, map[string]interface{}{})
}

// MessageFetcher adapts a Client to the message-fetching shape the
// normalizer expects.
type MessageFetcher struct {
	c Client
}

func NewMessageFetcher(c Client) *MessageFetcher {
	return &MessageFetcher{c: c}
}

func (f *MessageFetcher) FetchMessage(ctx context.Context, chatType int, peerUID, msgSeq string) (map[string]interface{}, error) {
	return FetchMessage(ctx, f.c, chatType, peerUID, msgSeq)
}
