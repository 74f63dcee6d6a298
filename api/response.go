package api

import (
	"bytes"
	"encoding/json"
)

// Kind tags a decoded response body.
type Kind int

const (
	// KindUnknown is a body that parsed as JSON but matched no known shape,
	// or did not parse at all
	KindUnknown Kind = iota
	KindAnalysis
	KindBatchStatus
	KindBatchAccepted
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindAnalysis:
		return "analysis"
	case KindBatchStatus:
		return "batch_status"
	case KindBatchAccepted:
		return "batch_accepted"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Analysis is a single contract analysis result. Fields the client does not
// interpret stay in Payload.Raw.
type Analysis struct {
	Success      bool    `json:"success"`
	ContractType string  `json:"contract_type,omitempty"`
	RiskLevel    string  `json:"risk_level,omitempty"`
	RiskScore    float64 `json:"risk_score,omitempty"`
	Summary      string  `json:"summary,omitempty"`
}

// ErrorBody is the service's error envelope.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Payload is a tagged response variant. Exactly the field matching Kind is
// set; Raw always holds the original body.
type Payload struct {
	Kind          Kind
	Analysis      *Analysis
	BatchStatus   *BatchStatus
	BatchAccepted *BatchAccepted
	Error         *ErrorBody
	Raw           json.RawMessage
}

// Decode classifies a response body by the fields it carries. Bodies that do
// not parse, or match no known shape, come back as KindUnknown.
func Decode(body []byte) *Payload {
	p := &Payload{Kind: KindUnknown, Raw: json.RawMessage(bytes.Clone(body))}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return p
	}
	has := func(names ...string) bool {
		for _, n := range names {
			if _, ok := fields[n]; !ok {
				return false
			}
		}
		return true
	}

	switch {
	case has("error") && !has("items"):
		var v ErrorBody
		if json.Unmarshal(body, &v) == nil {
			p.Kind, p.Error = KindError, &v
		}
	case has("status", "items"):
		var v BatchStatus
		if json.Unmarshal(body, &v) == nil {
			p.Kind, p.BatchStatus = KindBatchStatus, &v
		}
	case has("batch_id") && !has("status"):
		var v BatchAccepted
		if json.Unmarshal(body, &v) == nil {
			p.Kind, p.BatchAccepted = KindBatchAccepted, &v
		}
	case has("risk_score") || has("contract_type") || has("analysis"):
		var v Analysis
		if json.Unmarshal(body, &v) == nil {
			p.Kind, p.Analysis = KindAnalysis, &v
		}
	}
	return p
}
