// Package host groups the extension host runtime.
//
// The host lazily loads feature modules (components, locale messages and
// services) and resolves services across module boundaries. Subpackages own
// one concern each; app.Host wires them into one instance-scoped runtime.
package host
