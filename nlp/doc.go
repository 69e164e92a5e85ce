// Package nlp provides the shared machinery for codifying free text
// through external NLP engines.
//
// # Overview
//
// Engines are out-of-process batch programs (cTAKES, MetaMap) or
// in-process taggers that communicate exclusively through a file-drop
// protocol under a per-engine root directory:
//
//	<root>/<name>_input/<unit-id>.txt
//	<root>/<name>_output/<unit-id>.<ext>
//
// A unit of text is submitted by writing its input file exactly once;
// the sole completion signal is the existence of the matching output
// file. No events, exit codes, or messages are consulted.
//
// # Core Concepts
//
//   - Engine: the adapter contract every engine implements (Name,
//     Prepare, WriteInput, Run, ParseOutput).
//   - Pipeline: the shared file-drop base embedded by every adapter,
//     carrying the root layout and write-once input semantics.
//   - Code, CodeSet, Result: parsed codes grouped by code system
//     (snomed, cui, rxnorm, tags, text), with negation modeled
//     explicitly and rendered as a leading "-" at format boundaries.
//   - SegmentCriteria, JoinSentences: eligibility-text preparation
//     shared by every caller that feeds text to an engine.
//
// Engines are discovered from TOML manifests (one per file in a
// manifest directory) and instantiated by the nlp/engines package.
package nlp
