package capture

import (
	"fmt"
	"strings"
)

// TemplateVars feeds the placeholder tokens of operator-configured
// message templates. Amount is in major units.
type TemplateVars struct {
	PeerName   string
	PeerUID    string
	SenderName string
	SenderUIN  string
	Amount     float64
}

// ExpandTemplate substitutes %peerName%, %peerUid%, %senderName%,
// %sendUin% and %amount% tokens. Amount renders with two decimals.
func ExpandTemplate(tmpl string, vars TemplateVars) string {
	r := strings.NewReplacer(
		"%peerName%", vars.PeerName,
		"%peerUid%", vars.PeerUID,
		"%senderName%", vars.SenderName,
		"%sendUin%", vars.SenderUIN,
		"%amount%", fmt.Sprintf("%.2f", vars.Amount),
	)
	return r.Replace(tmpl)
}
