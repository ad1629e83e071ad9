// Package notifications delivers run events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Each event kind
// can be switched off independently in the [notifications] section.
//
// Pipeline code depends only on the Service interface.
package notifications
