// Copyright 2019 Hewlett Packard Enterprise Development LP

package reconciler

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerstore-tools/host-reconciler/pkg/model"
	"github.com/powerstore-tools/host-reconciler/pkg/storageprovider/fake"
)

const (
	fcInitiator    = "21:00:00:24:ff:31:e9:fc"
	fcInitiator2   = "21:00:00:24:ff:31:e9:ee"
	iscsiInitiator = "iqn.1998-01.com.vmware:lgc198248-5b06fb37"
	nvmeInitiator  = "nqn.2014-08.org.nvmexpress:uuid:1183e9a0"
)

func newTestReconciler() (*HostReconciler, *fake.HostProvider) {
	provider := fake.NewFakeHostProvider()
	return NewHostReconciler(provider), provider
}

func seedHost(provider *fake.HostProvider, name, osType string, portNames ...string) *model.Host {
	host := model.Host{
		Name:             name,
		OSType:           osType,
		HostConnectivity: model.ConnectivityLocalOnly,
	}
	for _, portName := range portNames {
		host.HostInitiators = append(host.HostInitiators, model.Initiator{
			PortName: portName,
			PortType: model.PortTypeFC,
		})
	}
	return provider.AddHost(host)
}

func TestCreateHostWithFCInitiator(t *testing.T) {
	reconciler, provider := newTestReconciler()

	result, err := reconciler.Reconcile(&model.HostSpec{
		Name:           "h1",
		OSType:         "Windows",
		Initiators:     []string{fcInitiator},
		State:          model.HostStatePresent,
		InitiatorState: model.InitiatorsPresentInHost,
	})

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, 1, provider.CreateCalls)
	require.NotNil(t, result.HostDetails)
	require.Len(t, result.HostDetails.HostInitiators, 1)
	assert.Equal(t, model.PortTypeFC, result.HostDetails.HostInitiators[0].PortType)
}

func TestCreateClassifiesEachProtocol(t *testing.T) {
	tests := []struct {
		name         string
		portName     string
		expectedType model.PortType
	}{
		{"fc wwn", fcInitiator, model.PortTypeFC},
		{"iscsi iqn", iscsiInitiator, model.PortTypeISCSI},
		{"nvme nqn", nvmeInitiator, model.PortTypeNVMe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reconciler, _ := newTestReconciler()
			result, err := reconciler.Reconcile(&model.HostSpec{
				Name:           "h-" + tt.name,
				OSType:         "Linux",
				Initiators:     []string{tt.portName},
				State:          model.HostStatePresent,
				InitiatorState: model.InitiatorsPresentInHost,
			})
			require.NoError(t, err)
			require.Len(t, result.HostDetails.HostInitiators, 1)
			assert.Equal(t, tt.expectedType, result.HostDetails.HostInitiators[0].PortType)
		})
	}
}

func TestCreateRejectsAllThreeProtocolFamilies(t *testing.T) {
	reconciler, provider := newTestReconciler()

	_, err := reconciler.Reconcile(&model.HostSpec{
		Name:           "h1",
		OSType:         "Linux",
		Initiators:     []string{fcInitiator, iscsiInitiator, nvmeInitiator},
		State:          model.HostStatePresent,
		InitiatorState: model.InitiatorsPresentInHost,
	})

	var mixErr *ProtocolMixError
	require.ErrorAs(t, err, &mixErr)
	assert.Equal(t, 0, provider.CreateCalls)
}

// Two protocol families in one creation request are accepted
func TestCreateAcceptsPairwiseProtocolMix(t *testing.T) {
	reconciler, _ := newTestReconciler()

	result, err := reconciler.Reconcile(&model.HostSpec{
		Name:           "h1",
		OSType:         "Linux",
		Initiators:     []string{fcInitiator, iscsiInitiator},
		State:          model.HostStatePresent,
		InitiatorState: model.InitiatorsPresentInHost,
	})

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Len(t, result.HostDetails.HostInitiators, 2)
}

func TestCreateWithDetailedInitiatorsInfersMissingPortType(t *testing.T) {
	reconciler, _ := newTestReconciler()

	result, err := reconciler.Reconcile(&model.HostSpec{
		Name:   "h1",
		OSType: "Windows",
		DetailedInitiators: []model.InitiatorDetail{
			{PortName: iscsiInitiator, ChapSingleUsername: "chapuser", ChapSinglePassword: "chappasswd12345"},
		},
		State:          model.HostStatePresent,
		InitiatorState: model.InitiatorsPresentInHost,
	})

	require.NoError(t, err)
	require.Len(t, result.HostDetails.HostInitiators, 1)
	assert.Equal(t, model.PortTypeISCSI, result.HostDetails.HostInitiators[0].PortType)
	assert.Equal(t, "chapuser", result.HostDetails.HostInitiators[0].ChapSingleUsername)
}

func TestCreateWithoutOSTypeFails(t *testing.T) {
	reconciler, provider := newTestReconciler()

	_, err := reconciler.Reconcile(&model.HostSpec{
		Name:           "h1",
		Initiators:     []string{fcInitiator},
		State:          model.HostStatePresent,
		InitiatorState: model.InitiatorsPresentInHost,
	})

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, 0, provider.CreateCalls)
}

func TestAddInitiatorsSubsetIsNoOp(t *testing.T) {
	reconciler, provider := newTestReconciler()
	seedHost(provider, "h1", "Windows", "A", "B")

	result, err := reconciler.Reconcile(&model.HostSpec{
		Name:           "h1",
		Initiators:     []string{"A"},
		State:          model.HostStatePresent,
		InitiatorState: model.InitiatorsPresentInHost,
	})

	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, 0, provider.ModifyCalls)
}

func TestAddInitiatorsOnlySendsMissing(t *testing.T) {
	reconciler, provider := newTestReconciler()
	seedHost(provider, "h1", "Windows", fcInitiator)

	result, err := reconciler.Reconcile(&model.HostSpec{
		Name:           "h1",
		Initiators:     []string{fcInitiator, fcInitiator2},
		State:          model.HostStatePresent,
		InitiatorState: model.InitiatorsPresentInHost,
	})

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, 1, provider.ModifyCalls)
	require.Len(t, result.HostDetails.HostInitiators, 2)
}

func TestAddDetailedInitiatorCarriesChapForISCSIOnly(t *testing.T) {
	reconciler, provider := newTestReconciler()
	seedHost(provider, "h1", "Windows")

	result, err := reconciler.Reconcile(&model.HostSpec{
		Name: "h1",
		DetailedInitiators: []model.InitiatorDetail{
			{PortName: iscsiInitiator, PortType: model.PortTypeISCSI,
				ChapMutualUsername: "chapuserMutual", ChapMutualPassword: "chappasswd12345"},
			{PortName: fcInitiator},
		},
		State:          model.HostStatePresent,
		InitiatorState: model.InitiatorsPresentInHost,
	})

	require.NoError(t, err)
	assert.True(t, result.Changed)
	require.Len(t, result.HostDetails.HostInitiators, 2)
	for _, added := range result.HostDetails.HostInitiators {
		if added.PortType == model.PortTypeISCSI {
			assert.Equal(t, "chapuserMutual", added.ChapMutualUsername)
		} else {
			assert.Empty(t, added.ChapMutualUsername)
		}
	}
}

func TestRemoveInitiatorsIntersectionOnly(t *testing.T) {
	reconciler, provider := newTestReconciler()
	seedHost(provider, "h1", "Windows", "A", "B")

	result, err := reconciler.Reconcile(&model.HostSpec{
		Name:           "h1",
		Initiators:     []string{"B", "C"},
		State:          model.HostStatePresent,
		InitiatorState: model.InitiatorsAbsentInHost,
	})

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, 1, provider.ModifyCalls)
	require.Len(t, result.HostDetails.HostInitiators, 1)
	assert.Equal(t, "A", result.HostDetails.HostInitiators[0].PortName)
}

func TestRemoveInitiatorsFromEmptyHostIsNoOp(t *testing.T) {
	reconciler, provider := newTestReconciler()
	seedHost(provider, "h1", "Windows")

	result, err := reconciler.Reconcile(&model.HostSpec{
		Name:           "h1",
		Initiators:     []string{"A"},
		State:          model.HostStatePresent,
		InitiatorState: model.InitiatorsAbsentInHost,
	})

	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, 0, provider.ModifyCalls)
}

func TestOSTypeChangeIsRejected(t *testing.T) {
	reconciler, provider := newTestReconciler()
	seedHost(provider, "h1", "Windows", "A")

	_, err := reconciler.Reconcile(&model.HostSpec{
		Name:   "h1",
		OSType: "Linux",
		State:  model.HostStatePresent,
	})

	var immutableErr *ImmutableFieldError
	require.ErrorAs(t, err, &immutableErr)
	assert.Equal(t, 0, provider.ModifyCalls)
	assert.Equal(t, 0, provider.DeleteCalls)
}

func TestDeleteAbsentHostIsNoOp(t *testing.T) {
	reconciler, provider := newTestReconciler()

	result, err := reconciler.Reconcile(&model.HostSpec{
		Name:  "missing",
		State: model.HostStateAbsent,
	})

	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Nil(t, result.HostDetails)
	assert.Equal(t, 0, provider.DeleteCalls)
}

func TestDeleteExistingHost(t *testing.T) {
	reconciler, provider := newTestReconciler()
	seedHost(provider, "h1", "Windows", "A")

	result, err := reconciler.Reconcile(&model.HostSpec{
		Name:  "h1",
		State: model.HostStateAbsent,
	})

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Nil(t, result.HostDetails)
	assert.Equal(t, 1, provider.DeleteCalls)
}

func TestRenameAndConnectivityModify(t *testing.T) {
	reconciler, provider := newTestReconciler()
	seedHost(provider, "h1", "Windows", "A")

	result, err := reconciler.Reconcile(&model.HostSpec{
		Name:             "h1",
		NewName:          "h1-new",
		HostConnectivity: model.ConnectivityMetroOptimizeRemote,
		State:            model.HostStatePresent,
	})

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, 1, provider.ModifyCalls)
	assert.Equal(t, "h1-new", result.HostDetails.Name)
	assert.Equal(t, model.ConnectivityMetroOptimizeRemote, result.HostDetails.HostConnectivity)
}

func TestModifySkippedWhenNothingDiffers(t *testing.T) {
	reconciler, provider := newTestReconciler()
	seedHost(provider, "h1", "Windows", "A")

	result, err := reconciler.Reconcile(&model.HostSpec{
		Name:             "h1",
		NewName:          "h1",
		HostConnectivity: model.ConnectivityLocalOnly,
		State:            model.HostStatePresent,
	})

	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, 0, provider.ModifyCalls)
}

// A second pass with the identical spec converges to changed=false
func TestReconcileIsIdempotent(t *testing.T) {
	reconciler, _ := newTestReconciler()
	spec := &model.HostSpec{
		Name:             "h1",
		OSType:           "Windows",
		Initiators:       []string{fcInitiator, iscsiInitiator},
		HostConnectivity: model.ConnectivityLocalOnly,
		State:            model.HostStatePresent,
		InitiatorState:   model.InitiatorsPresentInHost,
	}

	first, err := reconciler.Reconcile(spec)
	require.NoError(t, err)
	assert.True(t, first.Changed)

	second, err := reconciler.Reconcile(spec)
	require.NoError(t, err)
	assert.False(t, second.Changed)
}

func TestChapValidation(t *testing.T) {
	tests := []struct {
		name     string
		detail   model.InitiatorDetail
		expected bool
	}{
		{"FC with single CHAP fails",
			model.InitiatorDetail{PortName: fcInitiator, PortType: model.PortTypeFC, ChapSingleUsername: "u"}, true},
		{"NVMe with mutual CHAP fails",
			model.InitiatorDetail{PortName: nvmeInitiator, PortType: model.PortTypeNVMe, ChapMutualUsername: "u"}, true},
		{"iSCSI with CHAP passes",
			model.InitiatorDetail{PortName: iscsiInitiator, PortType: model.PortTypeISCSI, ChapSingleUsername: "u"}, false},
		{"FC without CHAP passes",
			model.InitiatorDetail{PortName: fcInitiator, PortType: model.PortTypeFC}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reconciler, provider := newTestReconciler()
			seedHost(provider, "h1", "Windows")

			_, err := reconciler.Reconcile(&model.HostSpec{
				Name:               "h1",
				DetailedInitiators: []model.InitiatorDetail{tt.detail},
				State:              model.HostStatePresent,
				InitiatorState:     model.InitiatorsPresentInHost,
			})

			if tt.expected {
				var validationErr *ValidationError
				require.ErrorAs(t, err, &validationErr)
				assert.Equal(t, 0, provider.ModifyCalls)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSpecPreconditions(t *testing.T) {
	tests := []struct {
		name string
		spec model.HostSpec
	}{
		{"neither name nor id", model.HostSpec{State: model.HostStatePresent}},
		{"both name and id", model.HostSpec{Name: "h1", ID: "id-1", State: model.HostStatePresent}},
		{"both initiator forms", model.HostSpec{Name: "h1", State: model.HostStatePresent,
			InitiatorState: model.InitiatorsPresentInHost,
			Initiators:     []string{fcInitiator},
			DetailedInitiators: []model.InitiatorDetail{
				{PortName: iscsiInitiator}}}},
		{"intent without initiators", model.HostSpec{Name: "h1", State: model.HostStatePresent,
			InitiatorState: model.InitiatorsPresentInHost}},
		{"initiators without intent", model.HostSpec{Name: "h1", State: model.HostStatePresent,
			Initiators: []string{fcInitiator}}},
		{"invalid os_type", model.HostSpec{Name: "h1", State: model.HostStatePresent, OSType: "Plan9"}},
		{"missing state", model.HostSpec{Name: "h1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reconciler, provider := newTestReconciler()

			_, err := reconciler.Reconcile(&tt.spec)

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, 0, provider.LookupCalls+provider.GetCalls+provider.CreateCalls)
		})
	}
}

func TestRenameOnMissingHostFails(t *testing.T) {
	reconciler, _ := newTestReconciler()

	_, err := reconciler.Reconcile(&model.HostSpec{
		Name:           "missing",
		OSType:         "Windows",
		NewName:        "renamed",
		Initiators:     []string{fcInitiator},
		State:          model.HostStatePresent,
		InitiatorState: model.InitiatorsPresentInHost,
	})

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestCreateWithWrongInitiatorStateFails(t *testing.T) {
	reconciler, provider := newTestReconciler()

	_, err := reconciler.Reconcile(&model.HostSpec{
		Name:           "h1",
		OSType:         "Windows",
		Initiators:     []string{fcInitiator},
		State:          model.HostStatePresent,
		InitiatorState: model.InitiatorsAbsentInHost,
	})

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, 0, provider.CreateCalls)
}

func TestAmbiguousNameFails(t *testing.T) {
	reconciler, provider := newTestReconciler()
	seedHost(provider, "h1", "Windows", "A")
	seedHost(provider, "h1", "Linux", "B")

	_, err := reconciler.Reconcile(&model.HostSpec{
		Name:  "h1",
		State: model.HostStatePresent,
	})

	var ambiguousErr *AmbiguousNameError
	require.ErrorAs(t, err, &ambiguousErr)
}

func TestExplicitIDNotFound(t *testing.T) {
	reconciler, _ := newTestReconciler()

	_, err := reconciler.Reconcile(&model.HostSpec{
		ID:    "no-such-id",
		State: model.HostStatePresent,
	})

	var notFoundErr *NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
	assert.Equal(t, "no-such-id", notFoundErr.ID)
}

func TestExplicitIDAbsentStateIsNoOp(t *testing.T) {
	reconciler, provider := newTestReconciler()

	result, err := reconciler.Reconcile(&model.HostSpec{
		ID:    "no-such-id",
		State: model.HostStateAbsent,
	})

	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, 0, provider.DeleteCalls)
}

func TestLookupByExplicitID(t *testing.T) {
	reconciler, provider := newTestReconciler()
	host := seedHost(provider, "h1", "Windows", "A")

	result, err := reconciler.Reconcile(&model.HostSpec{
		ID:    host.ID,
		State: model.HostStatePresent,
	})

	require.NoError(t, err)
	assert.False(t, result.Changed)
	require.NotNil(t, result.HostDetails)
	assert.Equal(t, "h1", result.HostDetails.Name)
}

func TestRemoteFailureWrapsOperation(t *testing.T) {
	tests := []struct {
		name string
		prep func(provider *fake.HostProvider)
		spec model.HostSpec
	}{
		{"create failure",
			func(provider *fake.HostProvider) { provider.CreateErr = fmt.Errorf("boom") },
			model.HostSpec{Name: "h1", OSType: "Windows", Initiators: []string{fcInitiator},
				State: model.HostStatePresent, InitiatorState: model.InitiatorsPresentInHost}},
		{"modify failure",
			func(provider *fake.HostProvider) {
				seedHost(provider, "h1", "Windows", "A")
				provider.ModifyErr = fmt.Errorf("boom")
			},
			model.HostSpec{Name: "h1", Initiators: []string{"B"},
				State: model.HostStatePresent, InitiatorState: model.InitiatorsPresentInHost}},
		{"delete failure",
			func(provider *fake.HostProvider) {
				seedHost(provider, "h1", "Windows", "A")
				provider.DeleteErr = fmt.Errorf("boom")
			},
			model.HostSpec{Name: "h1", State: model.HostStateAbsent}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reconciler, provider := newTestReconciler()
			tt.prep(provider)

			_, err := reconciler.Reconcile(&tt.spec)

			var remoteErr *RemoteOperationError
			require.ErrorAs(t, err, &remoteErr)
			assert.True(t, errors.Is(err, remoteErr.Err))
		})
	}
}

// Add-initiators and rename combine into one changed pass
func TestAddAndRenameCombine(t *testing.T) {
	reconciler, provider := newTestReconciler()
	seedHost(provider, "h1", "Windows", fcInitiator)

	result, err := reconciler.Reconcile(&model.HostSpec{
		Name:           "h1",
		NewName:        "h1-new",
		Initiators:     []string{fcInitiator2},
		State:          model.HostStatePresent,
		InitiatorState: model.InitiatorsPresentInHost,
	})

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, 2, provider.ModifyCalls)
	assert.Equal(t, "h1-new", result.HostDetails.Name)
	assert.Len(t, result.HostDetails.HostInitiators, 2)
}
