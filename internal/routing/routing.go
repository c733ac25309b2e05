// Package routing handles the external value-transfer boundary: deposit
// channel tokens and resolution of withdrawal destinations from the address
// directory.
package routing

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/desports/wager-engine/internal/model"
)

// Supported deposit channels. Two distinct external token sources feed the
// ledger; both map to the same credit contract.
const (
	ChannelNative  = "native"
	ChannelWrapped = "wrapped"
)

var validChannels = map[string]bool{
	ChannelNative:  true,
	ChannelWrapped: true,
}

// addressRegex bounds external destination addresses: printable identifier
// characters, no whitespace, at most 128 bytes.
var addressRegex = regexp.MustCompile(`^[0-9A-Za-z:._-]{1,128}$`)

var (
	ErrUnknownChannel = errors.New("routing: unknown deposit channel")
	ErrInvalidAddress = errors.New("routing: invalid external address")
)

// ValidateChannel checks that a deposit names one of the supported channels.
func ValidateChannel(channel string) error {
	if !validChannels[channel] {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	return nil
}

// ValidateAddress checks an external address recorded via the association
// directory.
func ValidateAddress(addr string) error {
	if !addressRegex.MatchString(addr) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return nil
}

// Destination resolves the externally payable destination for a confirmed
// withdrawal. The route flag selects between the account's associated primary
// and secondary addresses; with no association recorded the account
// identifier itself is the destination, so an approved withdrawal is never
// stranded.
func Destination(assoc *model.Association, account string, routeSecondary bool) string {
	if assoc == nil {
		return account
	}
	if routeSecondary {
		if assoc.Secondary != "" {
			return assoc.Secondary
		}
		return account
	}
	if assoc.Primary != "" {
		return assoc.Primary
	}
	return account
}
