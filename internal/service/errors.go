package service

import "errors"

var (
	ErrEmptyExport          = errors.New("export contains no recognized tables")
	ErrMigrationNotFound    = errors.New("migration not found")
	ErrMigrationInProgress  = errors.New("a migration is already running for this tenant")
	ErrValidationBlocked    = errors.New("dry run reported blocking defects")
	ErrNotRollbackable      = errors.New("only completed migrations can be rolled back")
	ErrNotCancellable       = errors.New("migration is not running")
	ErrNotResumable         = errors.New("only failed migrations of the same tenant can be resumed")
	ErrTenantRequired       = errors.New("tenant id is required")
	ErrServiceShuttingDown  = errors.New("migration service is shutting down")
)
