package types

// Version is the canonical chatwire version.
// It is sent as the contract version on invalidation events and in the
// transport User-Agent.
const Version = "0.3.0"
