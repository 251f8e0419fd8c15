// Package auth loads the CLI's bearer token and inspects its claims for
// display and early expiry warnings. Verification is the gateway's job.
package auth
