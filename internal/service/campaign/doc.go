// Package campaign implements campaign lifecycle management.
//
// The service layer contains the business logic for creating, scheduling,
// pausing, and cancelling campaigns, and owns the repository contracts the
// delivery pipeline consumes. It should never import from worker/ or
// renderer/.
//
// Repository implementations live in repository/postgres/ and
// repository/memory/.
package campaign
