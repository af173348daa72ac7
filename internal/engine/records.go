package engine

import (
	"github.com/ttauveron/gcp-iam-watcher/internal/event"
)

// Decoded wire shapes for the two recognized record kinds. Fields not read by
// the engines are left out on purpose; the full raw record travels on the
// event for diagnostics.

type feedRecord struct {
	Asset      *assetState `json:"asset"`
	PriorAsset *assetState `json:"priorAsset"`
}

type assetState struct {
	Name       string     `json:"name"`
	AssetType  string     `json:"assetType"`
	UpdateTime string     `json:"updateTime"`
	Ancestors  []string   `json:"ancestors"`
	IAMPolicy  *iamPolicy `json:"iamPolicy"`
}

func (a *assetState) bindings() []binding {
	if a == nil || a.IAMPolicy == nil {
		return nil
	}
	return a.IAMPolicy.Bindings
}

type iamPolicy struct {
	Bindings []binding `json:"bindings"`
}

type binding struct {
	Role      string           `json:"role"`
	Members   []string         `json:"members"`
	Condition *event.Condition `json:"condition"`
}

type auditRecord struct {
	ProtoPayload protoPayload  `json:"protoPayload"`
	Resource     auditResource `json:"resource"`
	Timestamp    string        `json:"timestamp"`
}

type protoPayload struct {
	ServiceName        string `json:"serviceName"`
	MethodName         string `json:"methodName"`
	ResourceName       string `json:"resourceName"`
	AuthenticationInfo struct {
		PrincipalEmail string `json:"principalEmail"`
	} `json:"authenticationInfo"`
	ServiceData struct {
		PolicyDelta struct {
			BindingDeltas []bindingDelta `json:"bindingDeltas"`
		} `json:"policyDelta"`
	} `json:"serviceData"`
}

type auditResource struct {
	Type   string            `json:"type"`
	Labels map[string]string `json:"labels"`
}

type bindingDelta struct {
	Action    string           `json:"action"`
	Role      string           `json:"role"`
	Member    string           `json:"member"`
	Condition *event.Condition `json:"condition"`
}
