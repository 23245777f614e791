package at

import (
	"fmt"
	"strings"
)

// Compose builds the wire text of a command. An empty code yields the bare
// probe. Otherwise the text is "AT+" + code + param, followed by "?" when
// query is set.
func Compose(code string, query bool, param string) (string, error) {
	if code == "" {
		return Probe, nil
	}

	n := len(CommandPrefix) + len(code) + len(param)
	if query {
		n += len(Query)
	}
	if n > MaxCommandLen {
		return "", fmt.Errorf("%w: %d bytes", ErrCommandTooLong, n)
	}

	var b strings.Builder
	b.Grow(n)
	b.WriteString(CommandPrefix)
	b.WriteString(code)
	b.WriteString(param)
	if query {
		b.WriteString(Query)
	}
	return b.String(), nil
}

// ParseValue strips a known-length prefix from a raw reply. The prefix is not
// compared, only skipped; an empty prefix returns raw unchanged.
func ParseValue(prefix, raw string) string {
	if len(raw) <= len(prefix) {
		return ""
	}
	return raw[len(prefix):]
}

// WhitelistQuery returns the parameter and expected reply prefix used to read
// a whitelist slot. The module wants the slot followed by a literal "?", and
// the query marker is appended on top of it.
func WhitelistQuery(slot WhitelistSlot) (param, expect string) {
	return fmt.Sprintf("%d?", slot), fmt.Sprintf("%s%d?:", WhitelistAck, slot)
}

// WhitelistParam returns the parameter used to store address in slot.
func WhitelistParam(slot WhitelistSlot, address string) string {
	return fmt.Sprintf("%d%s", slot, address)
}
