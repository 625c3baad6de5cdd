// Package ingest rebuilds the per-category vector stores from source
// documents.
//
// The data directory holds one subdirectory per category. Rebuilding a
// category loads its documents (.txt, .md, .pdf), splits them into
// overlapping chunks, embeds the chunks through the provider registry, and
// replaces the category's store contents. A verification pass re-opens every
// store the way the server does at startup. Watch mode keeps the process
// alive and rebuilds a category when its directory changes.
package ingest
