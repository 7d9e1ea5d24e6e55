// Package elevate is the unprivileged side of the MuxOS helper boundary.
//
// A Client launches a helper through an authentication-prompting launcher
// (pkexec by default), writes one JSON request to its stdin and reads the
// JSON response from its stdout. A nonzero exit status becomes an
// *ExitError whose message is the helper's diagnostic, ready to be shown
// to the user verbatim.
//
//	c := elevate.NewClient("/usr/libexec/muxos-helper", "security")
//	res, err := c.Batch(ctx, []model.ToggleRequest{{Feature: "firewall", Enabled: true}})
//
// Go runs a call on a background goroutine so an interface thread can keep
// running, and hands the outcome back on a channel.
package elevate
