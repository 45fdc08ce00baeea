// Copyright 2019 Hewlett Packard Enterprise Development LP

package fake

import (
	"fmt"

	"github.com/powerstore-tools/host-reconciler/pkg/model"
	"github.com/powerstore-tools/host-reconciler/pkg/storageprovider"
)

// HostProvider is an in-memory implementor of the HostProvider interface.
// The call counters let tests assert which remote operations a
// reconciliation pass actually issued.
type HostProvider struct {
	hosts  map[string]*model.Host
	nextID int

	GetCalls    int
	LookupCalls int
	CreateCalls int
	ModifyCalls int
	DeleteCalls int

	// When set, the matching operation fails with this error
	GetErr    error
	CreateErr error
	ModifyErr error
	DeleteErr error
}

// NewFakeHostProvider returns a fake host provider
func NewFakeHostProvider() *HostProvider {
	return &HostProvider{
		hosts: make(map[string]*model.Host),
	}
}

// AddHost seeds a host record, assigning an id when the record has none
func (provider *HostProvider) AddHost(host model.Host) *model.Host {
	if host.ID == "" {
		provider.nextID++
		host.ID = fmt.Sprintf("fake-host-%d", provider.nextID)
	}
	provider.hosts[host.ID] = &host
	return provider.hosts[host.ID]
}

// GetHost returns a copy of the fake host from memory
func (provider *HostProvider) GetHost(id string) (*model.Host, error) {
	provider.GetCalls++
	if provider.GetErr != nil {
		return nil, provider.GetErr
	}
	host, ok := provider.hosts[id]
	if !ok {
		return nil, nil
	}
	copied := *host
	copied.HostInitiators = append([]model.Initiator(nil), host.HostInitiators...)
	return &copied, nil
}

// GetHostsByName returns summaries of every fake host matching the name
func (provider *HostProvider) GetHostsByName(name string) ([]*model.HostSummary, error) {
	provider.LookupCalls++
	if provider.GetErr != nil {
		return nil, provider.GetErr
	}
	var summaries []*model.HostSummary
	for _, host := range provider.hosts {
		if host.Name == name {
			summaries = append(summaries, &model.HostSummary{ID: host.ID, Name: host.Name})
		}
	}
	return summaries, nil
}

// CreateHost stores a fake host built from the creation request
func (provider *HostProvider) CreateHost(name, osType string, initiators []model.InitiatorDetail, hostConnectivity string) (*model.Host, error) {
	provider.CreateCalls++
	if provider.CreateErr != nil {
		return nil, provider.CreateErr
	}
	for _, host := range provider.hosts {
		if host.Name == name {
			return nil, fmt.Errorf("Host named %s already exists", name)
		}
	}
	if hostConnectivity == "" {
		hostConnectivity = model.ConnectivityLocalOnly
	}
	host := model.Host{
		Name:             name,
		OSType:           osType,
		HostConnectivity: hostConnectivity,
	}
	for _, detail := range initiators {
		host.HostInitiators = append(host.HostInitiators, model.Initiator{
			PortName:           detail.PortName,
			PortType:           detail.PortType,
			ChapSingleUsername: detail.ChapSingleUsername,
			ChapMutualUsername: detail.ChapMutualUsername,
		})
	}
	return provider.AddHost(host), nil
}

// ModifyHost applies the populated params to the fake host in memory
func (provider *HostProvider) ModifyHost(id string, params *storageprovider.ModifyHostParams) error {
	provider.ModifyCalls++
	if provider.ModifyErr != nil {
		return provider.ModifyErr
	}
	host, ok := provider.hosts[id]
	if !ok {
		return fmt.Errorf("Could not find host with id %s", id)
	}
	if params.Name != "" {
		host.Name = params.Name
	}
	if params.HostConnectivity != "" {
		host.HostConnectivity = params.HostConnectivity
	}
	for _, detail := range params.AddInitiators {
		host.HostInitiators = append(host.HostInitiators, model.Initiator{
			PortName:           detail.PortName,
			PortType:           detail.PortType,
			ChapSingleUsername: detail.ChapSingleUsername,
			ChapMutualUsername: detail.ChapMutualUsername,
		})
	}
	for _, portName := range params.RemoveInitiators {
		var kept []model.Initiator
		for _, existing := range host.HostInitiators {
			if existing.PortName != portName {
				kept = append(kept, existing)
			}
		}
		host.HostInitiators = kept
	}
	return nil
}

// DeleteHost removes the fake host from memory
func (provider *HostProvider) DeleteHost(id string) error {
	provider.DeleteCalls++
	if provider.DeleteErr != nil {
		return provider.DeleteErr
	}
	if _, ok := provider.hosts[id]; !ok {
		return fmt.Errorf("Could not find host with id %s", id)
	}
	delete(provider.hosts, id)
	return nil
}
