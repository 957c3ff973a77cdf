// Package certs implements ACME certificate provisioning and renewal: the
// deployment core's C3 component.
//
// Provision starts an order and returns either a ChallengeData the caller
// must satisfy (placing a DNS TXT record or serving an HTTP-01 token) or
// a finished Certificate when the order was already valid.
// CompleteChallenge finishes the flow once the caller has satisfied the
// challenge. RunRenewalLoop periodically calls Provider.RenewDue, which
// re-provisions stored certificates nearing expiry.
package certs
