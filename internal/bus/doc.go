// ABOUTME: In-memory publish-subscribe message bus keyed by channel.
// ABOUTME: Sessions and the agent exchange datagrams through it.

// Package bus provides the internal publish-subscribe routing layer that
// admitted sessions communicate through. Subscribers register for a channel
// and receive every datagram published to it; publishing never blocks.
package bus
