package console

import "strings"

// ChannelFilter decides whether an inbound event is addressed to this
// console. Several independent sessions can share one server; the filter is
// the only mechanism preventing cross-channel event bleed.
type ChannelFilter struct {
	channel string
}

// NewChannelFilter builds a filter for the given channel tag. The tag is
// normalized to lowercase once here; comparison is case-sensitive after that.
func NewChannelFilter(channel string) ChannelFilter {
	return ChannelFilter{channel: strings.ToLower(channel)}
}

// Admit reports whether ev may mutate the session mirror. An event carrying
// no channel tag is a broadcast and is always admitted.
func (f ChannelFilter) Admit(ev Event) bool {
	if ev.Channel == "" {
		return true
	}
	return ev.Channel == f.channel
}
