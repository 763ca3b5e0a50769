// Package tenant resolves which project, environment, org and plan an
// incoming request belongs to and carries that Scope through the request
// context.
package tenant
