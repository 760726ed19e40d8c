package api

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error

	// Identity errors
	CodeIdentityDuplicate     = "E_IDENTITY_DUPLICATE"      // the email is already registered.
	CodeIdentityUnknownUser   = "E_IDENTITY_UNKNOWN_USER"   // the email is not registered.
	CodeIdentityUnknownTopDir = "E_IDENTITY_UNKNOWN_TOPDIR" // the top directory does not exist.

	// Path errors
	CodePathAllocFailed = "E_PATH_ALLOC_FAILED" // a failure while allocating a relative path identifier.
	CodePathLockBusy    = "E_PATH_LOCK_BUSY"    // the advisory path lock is held by someone else.
	CodePathLockNotHeld = "E_PATH_LOCK_NOT_HELD" // release of a lock that nobody holds.

	// Package errors
	CodePackageUnknownPath = "E_PACKAGE_UNKNOWN_PATH" // the relative path is not registered for the top directory.
	CodePackageNotFound    = "E_PACKAGE_NOT_FOUND"    // the requested version could not be found.
	CodePackagePutFailed   = "E_PACKAGE_PUT_FAILED"   // a failure while persisting an uploaded package.

	// Update errors
	CodeUpdatePollFailed = "E_UPDATE_POLL_FAILED" // a failure while draining a device sync queue.
)
