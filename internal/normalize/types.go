package normalize

import (
	"strings"

	"redgrab/internal/constants"
)

// Message is the canonical inbound record every host payload shape is
// reduced to. Elements stays nil when the summary fetch found nothing.
type Message struct {
	ChatType   int
	PeerUID    string
	PeerName   string
	MsgSeq     string
	SenderUIN  string
	SenderName string
	Elements   []map[string]interface{}
}

// Envelope describes a wallet element found inside a message. PCBody and
// Index are opaque blobs echoed back verbatim on claim.
type Envelope struct {
	Title      string
	PCBody     []byte
	Index      []byte
	RedChannel int
	BillNo     string
}

// IsPasscode reports whether the envelope is gated behind a passcode that
// must be sent to the conversation before claiming.
func (e *Envelope) IsPasscode() bool {
	return e.RedChannel == constants.PasscodeRedChannel
}

// Envelope returns the first wallet element of the message, if any.
func (m *Message) Envelope() (*Envelope, bool) {
	for _, el := range m.Elements {
		if el == nil {
			continue
		}
		if asInt(el["elementType"]) != constants.EnvelopeElementType {
			continue
		}
		w := asMap(el["walletElement"])
		if w == nil {
			continue
		}

		env := &Envelope{
			PCBody:     toBytes(w["pcBody"]),
			Index:      toBytes(w["stringIndex"]),
			RedChannel: asInt(w["redChannel"]),
			BillNo:     asString(w["billNo"]),
		}

		if env.BillNo == "" {
			env.BillNo = m.MsgSeq + ":" + asString(w["authkey"])
		}

		title := ""
		if recv := asMap(w["receiver"]); recv != nil {
			title = asString(recv["title"])
		}
		if title == "" {
			title = asString(w["title"])
		}
		title = strings.TrimSpace(title)
		if title == "" {
			title = constants.DefaultEnvelopeTitle
		}
		env.Title = title

		return env, true
	}
	return nil, false
}
