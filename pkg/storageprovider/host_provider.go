// Copyright 2019 Hewlett Packard Enterprise Development LP

package storageprovider

import (
	"fmt"

	"github.com/powerstore-tools/host-reconciler/pkg/model"
)

const (
	arrayIPKey  = "arrayIp"
	usernameKey = "username"
	passwordKey = "password"
	portKey     = "port"
	insecureKey = "insecure"
)

// HostProvider defines the host operations the reconciler requires from a
// storage array. Lookups report absence with a nil/empty result and a nil
// error; transport and API failures are returned as errors.
type HostProvider interface {
	// GetHost returns the host with the given id, or nil when no such host exists
	GetHost(id string) (*model.Host, error)
	// GetHostsByName returns every host whose name matches; empty when none do
	GetHostsByName(name string) ([]*model.HostSummary, error)
	// CreateHost creates a host with the given initiators and returns the created record
	CreateHost(name, osType string, initiators []model.InitiatorDetail, hostConnectivity string) (*model.Host, error)
	// ModifyHost applies the non-zero fields of params to the host
	ModifyHost(id string, params *ModifyHostParams) error
	// DeleteHost removes the host from the array
	DeleteHost(id string) error
}

// ModifyHostParams carries the mutable host fields for a modify request.
// Only the populated fields are sent to the array.
type ModifyHostParams struct {
	Name             string                  `json:"name,omitempty"`
	HostConnectivity string                  `json:"host_connectivity,omitempty"`
	AddInitiators    []model.InitiatorDetail `json:"add_initiators,omitempty"`
	RemoveInitiators []string                `json:"remove_initiators,omitempty"`
}

// Credentials defines how a HostProvider endpoint is accessed
type Credentials struct {
	Username string
	Password string
	ArrayIP  string
	Port     int
	Insecure bool
}

// CreateCredentials creates the credential object from the given secrets map
func CreateCredentials(secrets map[string]string) (*Credentials, error) {
	credentials := &Credentials{}

	for key, value := range secrets {
		switch key {
		case arrayIPKey:
			credentials.ArrayIP = value
		case usernameKey:
			credentials.Username = value
		case passwordKey:
			credentials.Password = value
		case portKey:
			port := 0
			if _, err := fmt.Sscanf(value, "%d", &port); err != nil {
				return nil, err
			}
			credentials.Port = port
		case insecureKey:
			credentials.Insecure = value == "true"
		}
	}

	// Check for mandatory secret parameters
	if credentials.Username == "" {
		return nil, fmt.Errorf("Missing username in the secrets")
	}
	if credentials.Password == "" {
		return nil, fmt.Errorf("Missing password in the secrets")
	}
	if credentials.ArrayIP == "" {
		return nil, fmt.Errorf("Missing array IP in the secrets")
	}

	return credentials, nil
}
