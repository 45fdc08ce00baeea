// Copyright 2019 Hewlett Packard Enterprise Development LP

package reconciler

import "fmt"

// ConfigurationError reports a self-contradictory desired-state spec. It
// always fails before any remote call is made.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// ValidationError reports CHAP credentials attached to a protocol that
// forbids them. It fails before any remote mutation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ImmutableFieldError reports an attempt to change a field the array does
// not allow to change after host creation.
type ImmutableFieldError struct {
	Field string
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("%s cannot be modified for an already existing host", e.Field)
}

// ProtocolMixError reports a creation request whose initiators span all
// three protocol families at once.
type ProtocolMixError struct {
	HostName string
}

func (e *ProtocolMixError) Error() string {
	return fmt.Sprintf("Invalid initiators for host %s. Cannot add IQN, WWN and NQN as part of "+
		"one host. Connect either fibre channel or iSCSI or NVMe", e.HostName)
}

// AmbiguousNameError reports that more than one host on the array shares
// the requested name.
type AmbiguousNameError struct {
	Name string
}

func (e *AmbiguousNameError) Error() string {
	return fmt.Sprintf("Multiple hosts by the name %s found", e.Name)
}

// NotFoundError reports an explicit host id that the array does not know,
// in a context where the host was expected to exist.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Host with id %s not found", e.ID)
}

// RemoteOperationError wraps a failed repository call with the operation
// attempted and the target host identity.
type RemoteOperationError struct {
	Op     string
	Target string
	Err    error
}

func (e *RemoteOperationError) Error() string {
	return fmt.Sprintf("%s operation on host %s failed with error: %v", e.Op, e.Target, e.Err)
}

func (e *RemoteOperationError) Unwrap() error {
	return e.Err
}
