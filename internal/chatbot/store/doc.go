// Package store implements the per-category vector stores behind the
// retrieval pipeline.
//
// Two backends are available: SQLite (the default; one database file per
// category directory, scored by a brute-force cosine scan) and Milvus (one
// collection per category on a shared connection). Availability of a
// category at startup is decided by whether its store opens and holds
// chunks.
package store
