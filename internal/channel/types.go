// Package channel routes outbound replies to messaging platforms. Addresses
// and thread ids share the "<channel>:<target>" form.
package channel

import (
	"errors"
	"fmt"
	"strings"
)

// ChannelType identifies a messaging platform (e.g., "telegram", "discord").
type ChannelType string

// String returns the channel type as a plain string.
func (c ChannelType) String() string {
	return string(c)
}

var (
	ErrInvalidAddress = errors.New("invalid channel address")
	ErrUnknownChannel = errors.New("unknown channel type")
)

// Address is a delivery destination on one platform.
type Address struct {
	Channel ChannelType
	Target  string
}

// String renders the address as channel:target.
func (a Address) String() string {
	return a.Channel.String() + ":" + a.Target
}

// ParseAddress splits raw into channel and target. The channel part is
// lower-cased; the target is kept verbatim.
func ParseAddress(raw string) (Address, error) {
	prefix, target, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	ct := normalizeChannelType(prefix)
	target = strings.TrimSpace(target)
	if ct == "" || target == "" {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	return Address{Channel: ct, Target: target}, nil
}

func normalizeChannelType(raw string) ChannelType {
	normalized := strings.TrimSpace(strings.ToLower(raw))
	if normalized == "" {
		return ""
	}
	return ChannelType(normalized)
}
