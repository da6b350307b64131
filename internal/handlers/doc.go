// Package handlers provides the built-in stage implementations: a local
// media transfer for the download stage and an exec bridge that hands any
// stage to an external command over JSON pipes.
package handlers
