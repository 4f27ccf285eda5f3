package types

// ChannelType identifies a notification delivery channel.
type ChannelType string

const (
	ChannelEmail     ChannelType = "email"
	ChannelMicroblog ChannelType = "microblog"
	ChannelQueue     ChannelType = "queue"
)

// DeliveryResult categorizes a single delivery outcome for metrics.
type DeliveryResult string

const (
	DeliverySent   DeliveryResult = "sent"
	DeliveryFailed DeliveryResult = "failed"
)

// PacketResult categorizes the outcome of one inbound datagram.
type PacketResult string

const (
	PacketAccepted PacketResult = "accepted"
	PacketDropped  PacketResult = "dropped"
)
