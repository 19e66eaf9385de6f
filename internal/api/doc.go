// Package api holds the wire types shared between the daemon's HTTP surface
// and the CLI client, plus the projections from internal records into those
// types. Keeping the conversions here means handlers and table renderers
// never reach into coordinator or dispatcher internals.
package api
