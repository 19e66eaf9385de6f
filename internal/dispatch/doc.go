// Package dispatch tracks submission units as jobs in a SQLite-backed store
// and coordinates their handoff to the execution backend.
//
// The dispatcher is a thin facade: priority comes from the calculator, actual
// execution from the backend adapter. It owns lane valves (rush, standard,
// bulk), retry lineage, and the mirroring of terminal backend states into the
// durable job records.
package dispatch
