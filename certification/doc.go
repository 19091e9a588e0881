// Package certification verifies the certificates replicas attach to
// certified reads. A certificate carries a pruned hash tree over the
// replicated state, a BLS signature on the tree's root digest, and
// optionally a delegation from the root subnet to the subnet that
// produced it.
package certification
