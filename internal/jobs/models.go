package jobs

import (
	"errors"

	"marketplace/internal/database"
)

// CollectionName is the collection holding job postings.
const CollectionName = "jobs"

// ErrJobNotFound is returned when no job has the requested id.
var ErrJobNotFound = errors.New("job not found")

// Job is a job posting. Its shape beyond the owner reference
// (buyer.email) is up to the client.
type Job = database.Document

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
}
