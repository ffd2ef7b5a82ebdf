// Package checkpoint persists download progress across interrupted sessions.
//
// The ledger tracks three levels: learning paths, courses and units. A
// course may belong to several learning paths at once; the ledger keeps
// the owning-path set on the course so shared courses are downloaded once
// and duplicated on disk for the other paths.
//
// Every mutation persists a full JSON snapshot atomically (temp file plus
// rename), so an external interrupt always leaves the file at the last
// consistent state. Storage failures are logged and never abort a run;
// the in-memory ledger stays authoritative for the session.
//
// Aggregate counters are kept exact by a symmetric rule: entering a
// terminal status increments the matching counter, and any transition
// out of a terminal status decrements it first. Repeated start/complete
// calls for the same entity therefore never double-count.
package checkpoint
