// Package trial models clinical trials fetched from the registry and
// binds them to the codification state machine.
//
// # Overview
//
// A Trial is a typed record of the registry fields the toolkit works
// with, plus an Extra side-mapping that carries every other registry
// field through load and store untouched. The eligibility section is
// parsed into an EligibilityCriteria record whose text segments into
// individual Criterion statements; each criterion and each registered
// keypath property codifies independently through the analyzable state
// machine.
//
// Codified results and criteria state persist into the trial's stored
// document: criteria under "_eligibility", keypath results as
// namespaced partial updates under "_codified.<keypath>.<engine>".
// Partial updates never rewrite the rest of the record, so concurrent
// writers of unrelated fields stay safe.
package trial
