// Package stage defines the contract between the worker runner and the code
// that does each stage's actual content processing.
package stage
