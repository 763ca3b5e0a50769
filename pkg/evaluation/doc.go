// Package evaluation answers combined feature and limit queries for one
// tenant scope. Feature and limit evaluation run concurrently; each request
// gets a fresh request ID and UTC timestamp.
package evaluation
