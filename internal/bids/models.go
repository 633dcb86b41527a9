package bids

import (
	"errors"

	"marketplace/internal/database"
)

// CollectionName is the collection holding bids.
const CollectionName = "bids"

// ErrBidNotFound is returned when no bid has the requested id.
var ErrBidNotFound = errors.New("bid not found")

// Bid is a seller's offer on a job. email names the seller and
// buyer.email the owner of the job bid on.
type Bid = database.Document

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
}
