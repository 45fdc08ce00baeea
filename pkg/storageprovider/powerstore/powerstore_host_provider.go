// Copyright 2019 Hewlett Packard Enterprise Development LP

// Package powerstore implements the HostProvider interface against the
// PowerStore REST management API.
package powerstore

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/hpe-storage/common-host-libs/concurrent"
	"github.com/hpe-storage/common-host-libs/connectivity"
	"github.com/hpe-storage/common-host-libs/jsonutil"
	log "github.com/hpe-storage/common-host-libs/logger"

	"github.com/powerstore-tools/host-reconciler/pkg/model"
	"github.com/powerstore-tools/host-reconciler/pkg/storageprovider"
)

const (
	authHeader = "Authorization"

	loginSessionPath = "/api/rest/login_session"
	hostPath         = "/api/rest/host"

	// Fields requested on every host read
	hostSelectFields = "id,name,description,os_type,type,host_group_id," +
		"host_initiators,host_connectivity,mapped_hosts(id,logical_unit_number," +
		"host_group(id,name),volume(id,name))"
)

const (
	// ClientTimeout : timeout for a connection to the array
	ClientTimeout = time.Duration(300) * time.Second
)

var (
	loginMutex = concurrent.NewMapMutex()
)

// ErrorsPayload is a serializer struct for the array's JSON error payload
type ErrorsPayload struct {
	Messages []*ErrorObject `json:"messages"`
}

// ErrorObject is one error entry of the array's error payload
type ErrorObject struct {
	Code     string `json:"code,omitempty"`
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message_l10n,omitempty"`
}

// HostStorageProvider is an implementor of the HostProvider interface
type HostStorageProvider struct {
	Credentials *storageprovider.Credentials

	Client    *connectivity.Client
	authToken string
}

// NewHostStorageProvider configures the REST client and verifies the
// credentials with an initial login session probe
func NewHostStorageProvider(credentials *storageprovider.Credentials) (*HostStorageProvider, error) {
	log.Trace(">>>>> NewHostStorageProvider")
	defer log.Trace("<<<<< NewHostStorageProvider")

	provider := &HostStorageProvider{
		Credentials: credentials,
		Client:      getArrayClient(credentials),
	}

	log.Trace("Attempting initial login to the array")
	status, err := provider.login()
	if err != nil {
		log.Errorf("Failed to login to array %s. Status code: %d. Error: %s",
			credentials.ArrayIP, status, err.Error())
		return nil, err
	}

	return provider, nil
}

// getArrayClient builds the https client for the array management endpoint
func getArrayClient(credentials *storageprovider.Credentials) *connectivity.Client {
	port := credentials.Port
	if port == 0 {
		port = 443
	}
	url := fmt.Sprintf("https://%s:%d", credentials.ArrayIP, port)
	transport := &http.Transport{
		// nolint: gosec
		TLSClientConfig: &tls.Config{InsecureSkipVerify: credentials.Insecure},
	}
	return connectivity.NewHTTPSClientWithTimeout(url, transport, ClientTimeout)
}

// login validates the credentials against the array's login session
// resource. The array accepts basic authentication on every request, so
// the probe only confirms the credentials are usable before the first
// host operation is attempted.
func (provider *HostStorageProvider) login() (int, error) {
	var errorResponse *ErrorsPayload

	loginMutex.Lock(provider.Credentials.ArrayIP)
	defer loginMutex.Unlock(provider.Credentials.ArrayIP)

	provider.authToken = basicAuthToken(provider.Credentials.Username, provider.Credentials.Password)

	status, err := provider.Client.DoJSON(
		&connectivity.Request{
			Action:        "GET",
			Path:          loginSessionPath,
			Header:        map[string]string{authHeader: provider.authToken},
			Payload:       nil,
			Response:      nil,
			ResponseError: &errorResponse,
		},
	)
	if errorResponse != nil {
		return status, handleError(status, errorResponse)
	}
	return status, err
}

func basicAuthToken(username, password string) string {
	raw := fmt.Sprintf("%s:%s", username, password)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// invoke is used to invoke all methods against the array. It re-probes the
// login session once when the array responds with unauthorized.
func (provider *HostStorageProvider) invoke(request *connectivity.Request) (int, error) {
	if request.Header == nil {
		request.Header = make(map[string]string)
	}
	request.Header[authHeader] = provider.authToken

	// Temporary copy of the Path as it gets modified in the DoJSON() method
	reqPath := request.Path
	status, err := provider.Client.DoJSON(request)
	if status == http.StatusOK || status == http.StatusCreated || status == http.StatusNoContent {
		return status, nil
	}
	if status == http.StatusUnauthorized {
		log.Info("Received unauthorized error. Attempting login...")
		status, err = provider.login()
		if err != nil {
			log.Errorf("Failed login during re-attempt. Status %d. Error: %s", status, err.Error())
			return status, err
		}
		request.Path = reqPath      // Set the original path value
		request.ResponseError = nil // Reset the previous error response
		log.Tracef("Re-attempting the request: %s %s", request.Action, request.Path)
		return provider.invoke(request)
	}
	log.Tracef("Replying with status code: %v", status)
	return status, err
}

// GetHost returns the host with the given id, or nil when the array does
// not know the id
func (provider *HostStorageProvider) GetHost(id string) (*model.Host, error) {
	log.Tracef(">>>>> GetHost, id: %s", id)
	defer log.Trace("<<<<< GetHost")

	response := &model.Host{}
	var errorResponse *ErrorsPayload

	status, err := provider.invoke(
		&connectivity.Request{
			Action:        "GET",
			Path:          fmt.Sprintf("%s/%s?select=%s", hostPath, id, hostSelectFields),
			Payload:       nil,
			Response:      &response,
			ResponseError: &errorResponse,
		},
	)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if errorResponse != nil {
		return nil, handleError(status, errorResponse)
	}
	if err != nil {
		return nil, err
	}
	jsonutil.PrintPrettyJSONToLog(response)
	return response, nil
}

// GetHostsByName returns every host matching the given name
func (provider *HostStorageProvider) GetHostsByName(name string) ([]*model.HostSummary, error) {
	log.Tracef(">>>>> GetHostsByName, name: %s", name)
	defer log.Trace("<<<<< GetHostsByName")

	var response []*model.HostSummary
	var errorResponse *ErrorsPayload

	status, err := provider.invoke(
		&connectivity.Request{
			Action:        "GET",
			Path:          fmt.Sprintf("%s?name=eq.%s&select=id,name", hostPath, name),
			Payload:       nil,
			Response:      &response,
			ResponseError: &errorResponse,
		},
	)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if errorResponse != nil {
		return nil, handleError(status, errorResponse)
	}
	if err != nil {
		return nil, err
	}
	jsonutil.PrintPrettyJSONToLog(response)
	return response, nil
}

// createHostRequest is the creation payload for the host resource
type createHostRequest struct {
	Name             string                  `json:"name"`
	OSType           string                  `json:"os_type"`
	Initiators       []model.InitiatorDetail `json:"initiators"`
	HostConnectivity string                  `json:"host_connectivity,omitempty"`
}

// createHostResponse carries the id assigned by the array
type createHostResponse struct {
	ID string `json:"id"`
}

// CreateHost creates a host with the given initiators and returns the
// created record
func (provider *HostStorageProvider) CreateHost(name, osType string, initiators []model.InitiatorDetail, hostConnectivity string) (*model.Host, error) {
	log.Tracef(">>>>> CreateHost, name: %s, osType: %s", name, osType)
	defer log.Trace("<<<<< CreateHost")

	response := &createHostResponse{}
	var errorResponse *ErrorsPayload

	payload := &createHostRequest{
		Name:             name,
		OSType:           osType,
		Initiators:       initiators,
		HostConnectivity: hostConnectivity,
	}

	status, err := provider.invoke(
		&connectivity.Request{
			Action:        "POST",
			Path:          hostPath,
			Payload:       payload,
			Response:      &response,
			ResponseError: &errorResponse,
		},
	)
	if errorResponse != nil {
		return nil, handleError(status, errorResponse)
	}
	if err != nil {
		return nil, err
	}

	return provider.GetHost(response.ID)
}

// ModifyHost applies the populated fields of params to the host
func (provider *HostStorageProvider) ModifyHost(id string, params *storageprovider.ModifyHostParams) error {
	log.Tracef(">>>>> ModifyHost, id: %s", id)
	defer log.Trace("<<<<< ModifyHost")

	var errorResponse *ErrorsPayload

	status, err := provider.invoke(
		&connectivity.Request{
			Action:        "PATCH",
			Path:          fmt.Sprintf("%s/%s", hostPath, id),
			Payload:       params,
			Response:      nil,
			ResponseError: &errorResponse,
		},
	)
	if errorResponse != nil {
		return handleError(status, errorResponse)
	}
	return err
}

// DeleteHost removes the host from the array
func (provider *HostStorageProvider) DeleteHost(id string) error {
	log.Tracef(">>>>> DeleteHost, id: %s", id)
	defer log.Trace("<<<<< DeleteHost")

	var errorResponse *ErrorsPayload

	status, err := provider.invoke(
		&connectivity.Request{
			Action:        "DELETE",
			Path:          fmt.Sprintf("%s/%s", hostPath, id),
			Payload:       nil,
			Response:      nil,
			ResponseError: &errorResponse,
		},
	)
	if errorResponse != nil {
		return handleError(status, errorResponse)
	}
	return err
}

// handleError folds the array's error payload into a single error value
func handleError(status int, errorResponse *ErrorsPayload) error {
	if errorResponse == nil || len(errorResponse.Messages) == 0 {
		return fmt.Errorf("status code %d returned by the array", status)
	}
	message := errorResponse.Messages[0]
	return fmt.Errorf("status code %d returned by the array, code: %s, message: %s",
		status, message.Code, message.Message)
}
