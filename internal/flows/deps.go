package flows

import "github.com/redforge/redauth/store"

// Deps groups flow dependency sets. The root service builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Credential CredentialDeps
	Code       CodeDeps
	Capture    CaptureDeps
}

// Result is the flow-local login response shape. Status carries the host
// session status as a raw value so flows stay decoupled from the root
// package's enum.
type Result struct {
	Success bool
	Status  uint8
	Message string
	Account *store.Account
}

// CheckOutcome is a flow-local session check result.
type CheckOutcome struct {
	LoggedIn bool
	Nickname string
	Avatar   string
}
