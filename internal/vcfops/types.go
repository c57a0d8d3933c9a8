package vcfops

import "encoding/json"

const (
	// AdapterKindVMware is the adapter kind for vCenter-managed resources.
	AdapterKindVMware = "VMWARE"
	// ResourceKindVM is the resource kind for virtual machines.
	ResourceKindVM = "VirtualMachine"

	// IdentifierPingEnabled is the resource identifier flag this tool flips.
	IdentifierPingEnabled = "isPingEnabled"
)

// requiredIdentifiers are the resource identifiers the update payload must
// carry for VCF Operations to accept a resource PUT.
var requiredIdentifiers = map[string]bool{
	IdentifierPingEnabled: true,
	"VMEntityName":        true,
	"VMEntityObjectID":    true,
	"VMEntityVCID":        true,
}

// Resource is a VCF Operations resource as returned by the suite API.
type Resource struct {
	Identifier  string      `json:"identifier"`
	ResourceKey ResourceKey `json:"resourceKey"`
}

// Name returns the resource's display name.
func (r Resource) Name() string {
	return r.ResourceKey.Name
}

// PingEnabled reports whether the isPingEnabled identifier is already "true".
func (r Resource) PingEnabled() bool {
	for _, id := range r.ResourceKey.ResourceIdentifiers {
		if id.IdentifierType.Name == IdentifierPingEnabled {
			return id.Value == "true"
		}
	}
	return false
}

// ResourceKey identifies a resource within an adapter.
type ResourceKey struct {
	Name                string               `json:"name"`
	AdapterKindKey      string               `json:"adapterKindKey"`
	ResourceKindKey     string               `json:"resourceKindKey"`
	ResourceIdentifiers []ResourceIdentifier `json:"resourceIdentifiers"`
}

// ResourceIdentifier is one typed identifier on a resource key.
type ResourceIdentifier struct {
	IdentifierType IdentifierType `json:"identifierType"`
	Value          string         `json:"value"`
}

// IdentifierType describes an identifier's name and type.
type IdentifierType struct {
	Name               string `json:"name"`
	DataType           string `json:"dataType,omitempty"`
	IsPartOfUniqueness bool   `json:"isPartOfUniqueness,omitempty"`
}

// resourceList is the envelope for GET /api/resources responses.
type resourceList struct {
	ResourceList []Resource `json:"resourceList"`
}

// tokenResponse is the envelope for the token acquire exchange.
type tokenResponse struct {
	Token string `json:"token"`
	// Validity is the token expiry as epoch milliseconds.
	Validity int64 `json:"validity"`
}

// LoginFile mirrors the loginData JSON document: the operations host plus
// the opaque credential payload forwarded to the token acquire endpoint.
type LoginFile struct {
	OperationsHost string          `json:"operationsHost"`
	LoginData      json.RawMessage `json:"loginData"`
}
