// Package hio is a hierarchical I/O library for HPC applications writing
// checkpoint/restart data across a tiered storage fabric.
//
// It presents an abstract namespace — context -> dataset -> id -> element —
// decoupled from any on-disk layout. A Context owns an ordered list of
// Modules, each bound to one data root; the hio/posix package provides the
// POSIX-backed Module implementation: physical layout selection, a parallel
// reservation protocol for shared data files, per-rank segment manifests,
// and the open-file cache and I/O path that tie them together.
//
// This package defines the collaborator contracts a Module must satisfy
// (Open/Close/Unlink/List/ElementOpen/.../ProcessReqs/Fini), the dataset and
// element data model, the communication abstraction used for the
// dataset/shared/leader process groups, the error taxonomy, and the
// ambient logging/retry/config helpers shared by every backend.
package hio
