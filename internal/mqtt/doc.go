// Package mqtt is the optional link between the daemon and the toy's
// companion app. The device pushes sensor and interaction payloads to
// pawprint/<device>/events/#; valid payloads become pipeline events,
// malformed ones are counted and dropped. The daemon publishes a
// retained pairing document, an availability birth/will pair, and one
// notification per stored diary entry on pawprint/<device>/diary.
//
// Connection management uses Eclipse Paho v2's [autopaho] package:
// automatic reconnection, with subscriptions and retained documents
// re-published on every (re-)connect. A will message flips the
// availability topic to "offline" on unexpected disconnects.
package mqtt
