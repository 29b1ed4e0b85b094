package inbox

import (
	"fmt"
	"strings"
)

// DefaultDomainSuffix is the only domain replies may be sent to.
const DefaultDomainSuffix = "@strathmore.edu"

// DefaultBlocklist holds broadcast addresses that must never receive a reply.
var DefaultBlocklist = []string{
	"strathmorecommunication@gmail.com",
	"allstudents@strathmore.edu",
	"allstaff@strathmore.edu",
}

// SendPolicy is checked before any send reaches the network.
type SendPolicy struct {
	DomainSuffix string
	Blocklist    []string
}

func DefaultSendPolicy() SendPolicy {
	return SendPolicy{
		DomainSuffix: DefaultDomainSuffix,
		Blocklist:    append([]string(nil), DefaultBlocklist...),
	}
}

// Check returns ErrRecipientNotAllowed when recipient is outside the
// institution's domain or on the blocklist.
func (p SendPolicy) Check(recipient string) error {
	to := strings.ToLower(strings.TrimSpace(recipient))
	if to == "" || !strings.HasSuffix(to, strings.ToLower(p.DomainSuffix)) {
		return fmt.Errorf("%w: %q", ErrRecipientNotAllowed, recipient)
	}
	for _, b := range p.Blocklist {
		if to == strings.ToLower(strings.TrimSpace(b)) {
			return fmt.Errorf("%w: %q is a broadcast address", ErrRecipientNotAllowed, recipient)
		}
	}
	return nil
}
