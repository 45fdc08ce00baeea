// Copyright 2019 Hewlett Packard Enterprise Development LP

package model

// PortType is the protocol family of a host initiator
type PortType string

const (
	// PortTypeISCSI is an iSCSI initiator (IQN)
	PortTypeISCSI PortType = "iSCSI"
	// PortTypeFC is a Fibre Channel initiator (WWN)
	PortTypeFC PortType = "FC"
	// PortTypeNVMe is an NVMe initiator (NQN)
	PortTypeNVMe PortType = "NVMe"
)

// HostState declares whether a host should exist on the array
type HostState string

const (
	// HostStatePresent indicates the host should exist on the array
	HostStatePresent HostState = "present"
	// HostStateAbsent indicates the host should not exist on the array
	HostStateAbsent HostState = "absent"
)

// InitiatorState declares whether the requested initiators should exist on the host
type InitiatorState string

const (
	// InitiatorsPresentInHost indicates the initiators should exist on the host
	InitiatorsPresentInHost InitiatorState = "present-in-host"
	// InitiatorsAbsentInHost indicates the initiators should not exist on the host
	InitiatorsAbsentInHost InitiatorState = "absent-in-host"
)

// Host connectivity modes supported by the array
const (
	ConnectivityLocalOnly           = "Local_Only"
	ConnectivityMetroOptimizeBoth   = "Metro_Optimize_Both"
	ConnectivityMetroOptimizeLocal  = "Metro_Optimize_Local"
	ConnectivityMetroOptimizeRemote = "Metro_Optimize_Remote"
)

// HostSpec is the desired state of a host for one reconciliation pass.
// Either Name or ID must be set, never both. Initiators and
// DetailedInitiators are mutually exclusive.
type HostSpec struct {
	Name               string            `json:"host_name,omitempty" yaml:"host_name,omitempty"`
	ID                 string            `json:"host_id,omitempty" yaml:"host_id,omitempty"`
	OSType             string            `json:"os_type,omitempty" yaml:"os_type,omitempty" validate:"omitempty,oneof=Windows Linux ESXi AIX HP-UX Solaris"`
	Initiators         []string          `json:"initiators,omitempty" yaml:"initiators,omitempty"`
	DetailedInitiators []InitiatorDetail `json:"detailed_initiators,omitempty" yaml:"detailed_initiators,omitempty" validate:"omitempty,dive"`
	State              HostState         `json:"state" yaml:"state" validate:"required,oneof=present absent"`
	InitiatorState     InitiatorState    `json:"initiator_state,omitempty" yaml:"initiator_state,omitempty" validate:"omitempty,oneof=present-in-host absent-in-host"`
	NewName            string            `json:"new_name,omitempty" yaml:"new_name,omitempty"`
	HostConnectivity   string            `json:"host_connectivity,omitempty" yaml:"host_connectivity,omitempty" validate:"omitempty,oneof=Local_Only Metro_Optimize_Both Metro_Optimize_Local Metro_Optimize_Remote"`
}

// InitiatorDetail is one requested initiator with optional protocol and
// CHAP credentials. PortType is inferred from the PortName syntax when
// left empty. CHAP fields are only valid on iSCSI initiators.
type InitiatorDetail struct {
	PortName           string   `json:"port_name" yaml:"port_name" validate:"required"`
	PortType           PortType `json:"port_type,omitempty" yaml:"port_type,omitempty" validate:"omitempty,oneof=iSCSI FC NVMe"`
	ChapSingleUsername string   `json:"chap_single_username,omitempty" yaml:"chap_single_username,omitempty"`
	ChapSinglePassword string   `json:"chap_single_password,omitempty" yaml:"chap_single_password,omitempty"`
	ChapMutualUsername string   `json:"chap_mutual_username,omitempty" yaml:"chap_mutual_username,omitempty"`
	ChapMutualPassword string   `json:"chap_mutual_password,omitempty" yaml:"chap_mutual_password,omitempty"`
}

// Initiator is an initiator record as reported by the array
type Initiator struct {
	PortName           string          `json:"port_name"`
	PortType           PortType        `json:"port_type"`
	ChapSingleUsername string          `json:"chap_single_username,omitempty"`
	ChapMutualUsername string          `json:"chap_mutual_username,omitempty"`
	ActiveSessions     []ActiveSession `json:"active_sessions,omitempty"`
}

// ActiveSession is one login session between an initiator and a target port
type ActiveSession struct {
	PortName    string `json:"port_name,omitempty"`
	ApplianceID string `json:"appliance_id,omitempty"`
	BondID      string `json:"bond_id,omitempty"`
	EthPortID   string `json:"eth_port_id,omitempty"`
	FcPortID    string `json:"fc_port_id,omitempty"`
}

// Host is the observed host record fetched from the array. The array owns
// this state; the reconciler never mutates it locally.
type Host struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Description      string       `json:"description,omitempty"`
	OSType           string       `json:"os_type"`
	Type             string       `json:"type,omitempty"`
	HostGroupID      string       `json:"host_group_id,omitempty"`
	HostInitiators   []Initiator  `json:"host_initiators"`
	HostConnectivity string       `json:"host_connectivity,omitempty"`
	MappedHosts      []MappedHost `json:"mapped_hosts,omitempty"`
}

// MappedHost is one host-volume mapping association of a host
type MappedHost struct {
	ID                string    `json:"id"`
	LogicalUnitNumber int       `json:"logical_unit_number"`
	HostGroup         *NamedRef `json:"host_group,omitempty"`
	Volume            *NamedRef `json:"volume,omitempty"`
}

// NamedRef is a minimal id/name reference to another array resource
type NamedRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HostSummary is the projection returned by a lookup-by-name query
type HostSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PortNames returns the port names of the host's current initiators
func (h *Host) PortNames() []string {
	var names []string
	for _, initiator := range h.HostInitiators {
		names = append(names, initiator.PortName)
	}
	return names
}
