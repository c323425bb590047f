// SPDX-License-Identifier: MPL-2.0

// Package transform turns guest package jars into host named jars.
//
// Scheduler consults Cache to skip jars whose output is current, fans the
// remaining jars out to a Worker (normally JarTransformer) on a pool sized to the
// batch, and once every job has finished persists the cache, flushes the
// generated adapter jar and writes the audit report. A batch either completes,
// possibly with per-job failures, or aborts with ErrTimeout or ErrInterrupted.
package transform
