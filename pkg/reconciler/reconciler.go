// Copyright 2019 Hewlett Packard Enterprise Development LP

// Package reconciler converges the desired state of a storage-array host
// (a named initiator group) with its observed state on the array. One
// Reconcile call performs exactly one pass: it fetches the current state,
// computes the minimal ordered set of create/add/remove/modify/delete
// requests, issues them, and reports whether anything changed.
package reconciler

import (
	"github.com/go-playground/validator/v10"
	log "github.com/hpe-storage/common-host-libs/logger"

	"github.com/powerstore-tools/host-reconciler/pkg/initiator"
	"github.com/powerstore-tools/host-reconciler/pkg/model"
	"github.com/powerstore-tools/host-reconciler/pkg/storageprovider"
)

// Operation names recorded on RemoteOperationError
const (
	opLookup           = "Lookup"
	opCreate           = "Create"
	opAddInitiators    = "Add-initiators"
	opRemoveInitiators = "Remove-initiators"
	opModify           = "Modify"
	opDelete           = "Delete"
)

// HostReconciler drives one desired-state pass against a host provider
type HostReconciler struct {
	provider storageprovider.HostProvider
	validate *validator.Validate
}

// NewHostReconciler returns a reconciler bound to the given provider
func NewHostReconciler(provider storageprovider.HostProvider) *HostReconciler {
	return &HostReconciler{
		provider: provider,
		validate: validator.New(),
	}
}

// Result is the verdict of one reconciliation pass. HostDetails is nil
// when the desired state is absent.
type Result struct {
	Changed     bool        `json:"changed"`
	HostDetails *model.Host `json:"host_details,omitempty"`
}

// Reconcile executes one pass for the given desired state. Every failure
// is terminal: no retry, no partial result.
func (r *HostReconciler) Reconcile(spec *model.HostSpec) (*Result, error) {
	log.Tracef(">>>>> Reconcile, name: %s, id: %s, state: %s", spec.Name, spec.ID, spec.State)
	defer log.Trace("<<<<< Reconcile")

	if err := r.checkSpec(spec); err != nil {
		return nil, err
	}

	hostID := spec.ID
	if spec.Name != "" {
		id, err := r.lookupHostID(spec.Name)
		if err != nil {
			return nil, err
		}
		hostID = id
	}

	var host *model.Host
	if hostID != "" {
		fetched, err := r.provider.GetHost(hostID)
		if err != nil {
			return nil, &RemoteOperationError{Op: opLookup, Target: hostID, Err: err}
		}
		if fetched == nil {
			if spec.ID != "" && spec.State == model.HostStatePresent {
				return nil, &NotFoundError{ID: spec.ID}
			}
			// Explicit id on an absent host with desired state absent:
			// already converged, nothing to delete.
			hostID = ""
		}
		host = fetched
	}

	changed := false

	// Create
	if spec.State == model.HostStatePresent && host == nil && spec.Name != "" {
		if spec.NewName != "" {
			return nil, &ConfigurationError{
				Message: "Operation on host failed as new_name is given for a host that does not exist",
			}
		}
		if spec.InitiatorState != model.InitiatorsPresentInHost {
			return nil, &ConfigurationError{
				Message: "Incorrect initiator_state specified for host creation",
			}
		}
		log.Infof("Creating host %s", spec.Name)
		created, err := r.createHost(spec)
		if err != nil {
			return nil, err
		}
		hostID = created.ID
		changed = true
	}

	if host != nil && spec.OSType != "" && spec.OSType != host.OSType {
		return nil, &ImmutableFieldError{Field: "os_type"}
	}

	// Add initiators
	if spec.State == model.HostStatePresent && host != nil &&
		spec.InitiatorState == model.InitiatorsPresentInHost {
		log.Infof("Adding initiators to host %s", host.Name)
		added, err := r.addInitiators(spec, host)
		if err != nil {
			return nil, err
		}
		changed = added || changed
	}

	// Remove initiators
	if spec.State == model.HostStatePresent && host != nil &&
		spec.InitiatorState == model.InitiatorsAbsentInHost {
		log.Infof("Removing initiators from host %s", host.Name)
		removed, err := r.removeInitiators(spec, host)
		if err != nil {
			return nil, err
		}
		changed = removed || changed
	}

	// Rename / connectivity modify
	if spec.State == model.HostStatePresent && host != nil &&
		(spec.NewName != "" || spec.HostConnectivity != "") {
		if isModifyRequired(host, spec.NewName, spec.HostConnectivity) {
			params := &storageprovider.ModifyHostParams{
				Name:             spec.NewName,
				HostConnectivity: spec.HostConnectivity,
			}
			if err := r.provider.ModifyHost(host.ID, params); err != nil {
				return nil, &RemoteOperationError{Op: opModify, Target: host.Name, Err: err}
			}
			changed = true
		}
	}

	// Delete
	if spec.State == model.HostStateAbsent && host != nil {
		log.Infof("Deleting host %s", host.Name)
		if err := r.provider.DeleteHost(host.ID); err != nil {
			return nil, &RemoteOperationError{Op: opDelete, Target: host.Name, Err: err}
		}
		changed = true
	}

	log.Infof("Reconciliation pass finished, changed: %v", changed)
	return r.assembleResult(spec, changed, hostID)
}

// checkSpec fails fast on a self-contradictory spec before any remote
// mutation is attempted
func (r *HostReconciler) checkSpec(spec *model.HostSpec) error {
	if spec.Name == "" && spec.ID == "" {
		return &ConfigurationError{Message: "One of host_name or host_id is required"}
	}
	if spec.Name != "" && spec.ID != "" {
		return &ConfigurationError{Message: "host_name and host_id are mutually exclusive"}
	}
	if len(spec.Initiators) > 0 && len(spec.DetailedInitiators) > 0 {
		return &ConfigurationError{Message: "initiators and detailed_initiators are mutually exclusive"}
	}
	if err := r.validate.Struct(spec); err != nil {
		return &ConfigurationError{Message: "Invalid host specification: " + err.Error()}
	}

	hasInitiators := len(spec.Initiators) > 0 || len(spec.DetailedInitiators) > 0
	if spec.InitiatorState != "" && !hasInitiators {
		return &ConfigurationError{
			Message: "initiators or detailed_initiators are mandatory along with initiator_state",
		}
	}
	if hasInitiators && spec.InitiatorState == "" {
		return &ConfigurationError{
			Message: "initiator_state is mandatory along with initiators or detailed_initiators",
		}
	}

	// CHAP constraints only matter when this pass manipulates initiators
	if len(spec.DetailedInitiators) > 0 && spec.InitiatorState != "" {
		if err := validateInitiators(spec.DetailedInitiators); err != nil {
			return err
		}
	}
	return nil
}

// validateInitiators rejects CHAP credentials on protocols that forbid
// them. The first offending initiator aborts the whole operation.
func validateInitiators(details []model.InitiatorDetail) error {
	for _, detail := range details {
		if detail.ChapSingleUsername == "" && detail.ChapMutualUsername == "" {
			continue
		}
		switch detail.PortType {
		case model.PortTypeFC:
			return &ValidationError{Message: "CHAP authentication is not supported for FC initiator type"}
		case model.PortTypeNVMe:
			return &ValidationError{Message: "CHAP authentication is not supported for NVMe initiator type"}
		}
	}
	return nil
}

// lookupHostID resolves a host name to its id. Returns an empty id when
// no host carries the name; array-side name uniqueness is not assumed.
func (r *HostReconciler) lookupHostID(name string) (string, error) {
	log.Tracef(">>>>> lookupHostID, name: %s", name)
	defer log.Trace("<<<<< lookupHostID")

	summaries, err := r.provider.GetHostsByName(name)
	if err != nil {
		return "", &RemoteOperationError{Op: opLookup, Target: name, Err: err}
	}
	if len(summaries) > 1 {
		return "", &AmbiguousNameError{Name: name}
	}
	if len(summaries) == 1 {
		return summaries[0].ID, nil
	}
	return "", nil
}

// createHost classifies the requested initiators and issues a single
// creation request
func (r *HostReconciler) createHost(spec *model.HostSpec) (*model.Host, error) {
	log.Tracef(">>>>> createHost, name: %s", spec.Name)
	defer log.Trace("<<<<< createHost")

	if spec.OSType == "" {
		return nil, &ConfigurationError{
			Message: "Create host " + spec.Name + " failed as os_type is not specified",
		}
	}

	var initiators []model.InitiatorDetail
	if len(spec.Initiators) > 0 {
		for _, portName := range spec.Initiators {
			initiators = append(initiators, model.InitiatorDetail{
				PortName: portName,
				PortType: initiator.Classify(portName),
			})
		}
	} else {
		for _, detail := range spec.DetailedInitiators {
			if detail.PortType == "" {
				detail.PortType = initiator.Classify(detail.PortName)
			}
			initiators = append(initiators, detail)
		}
	}

	// Spanning all three protocol families in one creation request is
	// rejected; two families are accepted.
	seen := map[model.PortType]bool{}
	for _, detail := range initiators {
		seen[detail.PortType] = true
	}
	if seen[model.PortTypeISCSI] && seen[model.PortTypeFC] && seen[model.PortTypeNVMe] {
		return nil, &ProtocolMixError{HostName: spec.Name}
	}

	log.Infof("Creating host %s with %d initiators", spec.Name, len(initiators))
	created, err := r.provider.CreateHost(spec.Name, spec.OSType, initiators, spec.HostConnectivity)
	if err != nil {
		return nil, &RemoteOperationError{Op: opCreate, Target: spec.Name, Err: err}
	}
	return created, nil
}

// addInitiators issues one batch add for the initiators the host is
// missing. Initiators the host already carries are skipped; a fully
// satisfied request is a no-op.
func (r *HostReconciler) addInitiators(spec *model.HostSpec, host *model.Host) (bool, error) {
	log.Tracef(">>>>> addInitiators, host: %s", host.Name)
	defer log.Trace("<<<<< addInitiators")

	existing := host.PortNames()
	requested := requestedPortNames(spec)

	if initiator.IsSubset(requested, existing) {
		log.Infof("Initiators are already present in host %s", host.Name)
		return false, nil
	}

	additions := initiator.Additions(existing, requested)
	var addList []model.InitiatorDetail
	for _, portName := range additions {
		detail := model.InitiatorDetail{
			PortName: portName,
			PortType: initiator.Classify(portName),
		}
		// CHAP credentials ride along on iSCSI adds when the caller used
		// the detailed form
		if detail.PortType == model.PortTypeISCSI {
			if requestedDetail := findDetail(spec.DetailedInitiators, portName); requestedDetail != nil {
				detail.ChapSingleUsername = requestedDetail.ChapSingleUsername
				detail.ChapSinglePassword = requestedDetail.ChapSinglePassword
				detail.ChapMutualUsername = requestedDetail.ChapMutualUsername
				detail.ChapMutualPassword = requestedDetail.ChapMutualPassword
			}
		}
		addList = append(addList, detail)
	}

	if len(addList) == 0 {
		log.Infof("No initiators to add to host %s", host.Name)
		return false, nil
	}

	log.Infof("Adding %d initiators to host %s", len(addList), host.Name)
	params := &storageprovider.ModifyHostParams{AddInitiators: addList}
	if err := r.provider.ModifyHost(host.ID, params); err != nil {
		return false, &RemoteOperationError{Op: opAddInitiators, Target: host.Name, Err: err}
	}
	return true, nil
}

// removeInitiators issues one batch remove for the requested initiators
// the host actually carries. Removal requests are by port name only.
func (r *HostReconciler) removeInitiators(spec *model.HostSpec, host *model.Host) (bool, error) {
	log.Tracef(">>>>> removeInitiators, host: %s", host.Name)
	defer log.Trace("<<<<< removeInitiators")

	existing := host.PortNames()
	if len(existing) == 0 {
		log.Infof("No initiators are present in host %s", host.Name)
		return false, nil
	}

	removals := initiator.Removals(existing, requestedPortNames(spec))
	if len(removals) == 0 {
		log.Infof("No initiators to remove from host %s", host.Name)
		return false, nil
	}

	log.Infof("Removing %d initiators from host %s", len(removals), host.Name)
	params := &storageprovider.ModifyHostParams{RemoveInitiators: removals}
	if err := r.provider.ModifyHost(host.ID, params); err != nil {
		return false, &RemoteOperationError{Op: opRemoveInitiators, Target: host.Name, Err: err}
	}
	return true, nil
}

// assembleResult refetches the post-mutation state when the host should
// exist and returns an empty record when it should not
func (r *HostReconciler) assembleResult(spec *model.HostSpec, changed bool, hostID string) (*Result, error) {
	if spec.State == model.HostStateAbsent || hostID == "" {
		return &Result{Changed: changed}, nil
	}
	host, err := r.provider.GetHost(hostID)
	if err != nil {
		return nil, &RemoteOperationError{Op: opLookup, Target: hostID, Err: err}
	}
	return &Result{Changed: changed, HostDetails: host}, nil
}

// requestedPortNames flattens either initiator form to its port names
func requestedPortNames(spec *model.HostSpec) []string {
	if len(spec.Initiators) > 0 {
		return spec.Initiators
	}
	var names []string
	for _, detail := range spec.DetailedInitiators {
		names = append(names, detail.PortName)
	}
	return names
}

func findDetail(details []model.InitiatorDetail, portName string) *model.InitiatorDetail {
	for i := range details {
		if details[i].PortName == portName {
			return &details[i]
		}
	}
	return nil
}

// isModifyRequired checks field by field whether a modify request would
// change anything on the array
func isModifyRequired(host *model.Host, newName, hostConnectivity string) bool {
	if newName != "" && host.Name != newName {
		return true
	}
	if hostConnectivity != "" && host.HostConnectivity != hostConnectivity {
		return true
	}
	return false
}
