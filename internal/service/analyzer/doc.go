// Package analyzer runs one alarm health evaluation.
//
// Run wires file sources, the record store, the optional advisor and the
// metrics recorder from configuration. Analyzer holds the pipeline itself:
// static checks over every unique alarm, bounded parallel history
// classification and advisory, then one write per record.
package analyzer
