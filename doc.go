// Package shindex retrieves, for a query vector derived from a music
// recording, the most similar fixed-length segments ("shingles") from a large
// precomputed corpus under Euclidean distance.
//
// The pipeline is: per-recording feature sequences are shingled with a
// sliding window, optionally projected to a lower dimensionality with PCA,
// and collected into an immutable corpus. Three search backends are built
// over that corpus: an exact brute-force scan, an exact KD-tree, and an
// approximate HNSW graph. A benchmark harness compares their query latency
// under identical workloads.
//
// All indexes are built once and are read-only afterwards, which makes them
// safe for unsynchronized concurrent queries.
package shindex
