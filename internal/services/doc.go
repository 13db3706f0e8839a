// Package services holds cross-cutting helpers shared by the pipeline and
// the external capability clients: the sentinel error taxonomy used to
// classify stage failures, and context annotations (job, lecture, stage,
// correlation id) consumed by structured logging.
package services
