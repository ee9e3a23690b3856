// Package gateway holds the LLM-backed gateways the coaching core talks
// through: the responder that produces coach utterances, the signal
// extractor, and the transition confirmer. All of them share one Anthropic
// Messages API client with rate limiting and bounded retries.
//
// The gateways honor the core's fallback contracts: extraction failure means
// "no update", confirmation failure means "abstain". Only the responder's
// errors are allowed to surface to the API caller.
package gateway
