package services

import "errors"

var (
	// ErrEmbeddingUnavailable means the embedding provider could not produce
	// a vector. Translation falls back to the base model path; the async
	// memory inserter retries, then rolls the pending entry back.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrRetrainNotEligible means neither the override counter nor the
	// elapsed-interval condition was met when a trigger was requested.
	ErrRetrainNotEligible = errors.New("retrain not eligible")

	// ErrRetrainInProgress means a training run is already active; at most
	// one run may be in flight.
	ErrRetrainInProgress = errors.New("retrain already in progress")

	ErrSegmentNotFound     = errors.New("segment not found")
	ErrTrainingRunNotFound = errors.New("training run not found")
)
