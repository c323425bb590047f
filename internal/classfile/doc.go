// SPDX-License-Identifier: MPL-2.0

// Package classfile reads and writes JVM class files at constant-pool level.
//
// Method bodies are kept as raw bytes: rewriting never renumbers existing pool
// entries, it only appends new ones and repoints references, so instruction
// operands stay valid. Attributes whose contents carry symbols (Code sub
// attributes, annotations, bootstrap methods) have typed codecs; every other
// attribute round-trips untouched.
package classfile
