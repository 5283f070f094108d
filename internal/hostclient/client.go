package hostclient

import (
	"context"
)

// Commands on the host's native API surface.
const (
	CmdSendMsg      = "nodeIKernelMsgService/sendMsg"
	CmdGetMsgs      = "nodeIKernelMsgService/getMsgs"
	CmdGrabRedBag   = "nodeIKernelMsgService/grabRedBag"
	CmdActivateChat = "nodeIKernelMsgService/getAioFirstViewLatestMsgsAndAddActiveChat"
	CmdGetGroupList = "getGroupList"
)

// Events the host pushes over the bridge.
const (
	EventRecvMsg              = "nodeIKernelMsgListener/onRecvMsg"
	EventRecentContactChanged = "nodeIKernelRecentContactListener/onRecentContactChanged"
	EventGroupListUpdate      = "onGroupListUpdate"
)

// EventHandler receives pushed host events. Handlers must not block; the
// bridge dispatches each event on its own goroutine.
type EventHandler func(event string, payload map[string]interface{})

// Client is the bridge to the hosting IM runtime.
//
// Subscribe fully replaces any previously installed handler: the bridge
// first drops all existing subscriptions so an event is never delivered
// twice. Invoke is safe for concurrent use.
type Client interface {
	Invoke(ctx context.Context, command string, body map[string]interface{}) (map[string]interface{}, error)
	Subscribe(handler EventHandler) error
	Ping(ctx context.Context) error
	Close() error
}
