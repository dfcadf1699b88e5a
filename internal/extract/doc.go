// Package extract turns the free text of an event announcement into a
// Descriptor (activity name, scheduled time, run identifier).
//
// Extraction is a pure function of its input: the same text always yields
// the same Descriptor, which is what lets the signup registry rebuild a
// forgotten event from its announcement at any time.
package extract
