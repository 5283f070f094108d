package settings

// Policy is the operator-editable claim policy. Field names follow the
// on-disk JSON document so existing policy files keep loading unchanged.
type Policy struct {
	IsActive          bool     `json:"isActive"`
	IsActiveAllGroups bool     `json:"isActiveAllGroups"`

	// BlockType selects the filtering mode: "0" disables keyword and
	// list checks, "1" admits only envelopes matching the listen lists,
	// "2" rejects envelopes matching the avoid lists.
	BlockType      string   `json:"blockType"`
	ListenKeyWords []string `json:"listenKeyWords"`
	ListenGroups   []string `json:"listenGroups"`
	ListenQQs      []string `json:"listenQQs"`
	AvoidKeyWords  []string `json:"avoidKeyWords"`
	AvoidGroups    []string `json:"avoidGroups"`
	AvoidQQs       []string `json:"avoidQQs"`

	NotificationOnly bool   `json:"notificationonly"`
	StopGrabByTime   bool   `json:"stopGrabByTime"`
	StopGrabStart    string `json:"stopGrabStartTime"`
	StopGrabEnd      string `json:"stopGrabEndTime"`

	AntiDetect     bool `json:"antiDetect"`
	UseSelfNotice  bool `json:"useSelfNotice"`
	UseRandomDelay bool `json:"useRandomDelay"`

	// Delay bounds are milliseconds for claiming and seconds for the
	// thank-you message.
	DelayLowerBound        int `json:"delayLowerBound"`
	DelayUpperBound        int `json:"delayUpperBound"`
	DelayLowerBoundForSend int `json:"delayLowerBoundForSend"`
	DelayUpperBoundForSend int `json:"delayUpperBoundForSend"`

	ThanksMsgs []string `json:"thanksMsgs"`

	// Send2Who routes notifications: first element "1" means a group,
	// anything else a private chat; empty falls back to messaging self.
	Send2Who   []string `json:"Send2Who"`
	ReceiveMsg string   `json:"receiveMsg"`

	CustomRules []string `json:"customRules"`

	TotalRedBagNum int     `json:"totalRedBagNum"`
	TotalAmount    float64 `json:"totalAmount"`
}

const DefaultReceiveMsg = `[Grab RedBag]来自群"%peerName%(%peerUid%)"成员:"%senderName%(%sendUin%)" 收到金额 %amount% 元`

func DefaultPolicy() Policy {
	return Policy{
		IsActive:               true,
		IsActiveAllGroups:      false,
		BlockType:              "0",
		ListenKeyWords:         []string{},
		ListenGroups:           []string{},
		ListenQQs:              []string{},
		AvoidKeyWords:          []string{},
		AvoidGroups:            []string{},
		AvoidQQs:               []string{},
		NotificationOnly:       false,
		StopGrabByTime:         false,
		StopGrabStart:          "00:00",
		StopGrabEnd:            "00:00",
		AntiDetect:             false,
		UseSelfNotice:          false,
		UseRandomDelay:         false,
		DelayLowerBound:        0,
		DelayUpperBound:        0,
		DelayLowerBoundForSend: 0,
		DelayUpperBoundForSend: 0,
		ThanksMsgs:             []string{},
		Send2Who:               []string{},
		ReceiveMsg:             DefaultReceiveMsg,
		CustomRules:            []string{},
		TotalRedBagNum:         0,
		TotalAmount:            0,
	}
}
