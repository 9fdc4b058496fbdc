// Package risk scores an order snapshot before carrier hand-off.
// Analysis is pure and advisory: callers decide whether a report with
// high-severity findings blocks automatic shipment creation.
package risk

import (
	"regexp"
	"strings"

	"order-fulfillment-service/internal/model"
)

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

const (
	FindingIncompleteAddress   = "incomplete_address"
	FindingInvalidPincode      = "invalid_pincode"
	FindingInvalidPhone        = "invalid_phone"
	FindingHighCODValue        = "high_cod_value"
	FindingPriorFailedDelivery = "prior_failed_delivery"
	FindingUnserviceableArea   = "unserviceable_area"
)

// Finding is a single advisory classification; not persisted on its own.
type Finding struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

type Report struct {
	HasRisks          bool      `json:"hasRisks"`
	RiskCount         int       `json:"riskCount"`
	Risks             []Finding `json:"risks"`
	HighSeverityCount int       `json:"highSeverityCount"`
}

// DefaultCODThresholdPaise is ₹50,000 in paise.
const DefaultCODThresholdPaise int64 = 5_000_000

// Placeholder tokens that mark a junk address, matched case-insensitively
// as substrings.
var placeholderTokens = []string{"test", "n/a", "dummy", "sample", "xyz", "abc"}

// Tracking status fragments that indicate a previous delivery problem.
var failedDeliveryMarkers = []string{
	"failed delivery", "undelivered", "rto initiated", "rto", "customer refused",
}

var (
	pincodeRe = regexp.MustCompile(`^[1-9][0-9]{5}$`)
	phoneRe   = regexp.MustCompile(`^[6-9][0-9]{9}$`)
)

type Analyzer struct {
	codThresholdPaise int64
}

func NewAnalyzer(codThresholdPaise int64) Analyzer {
	if codThresholdPaise <= 0 {
		codThresholdPaise = DefaultCODThresholdPaise
	}
	return Analyzer{codThresholdPaise: codThresholdPaise}
}

// Analyze runs every check independently; each emits at most one
// finding. Deterministic for a given order snapshot, no I/O.
func (a Analyzer) Analyze(o *model.Order) Report {
	var findings []Finding

	if f, ok := checkAddress(o.Address); ok {
		findings = append(findings, f)
	}
	if f, ok := checkPincode(o.Address.PostalCode); ok {
		findings = append(findings, f)
	}
	if f, ok := checkPhone(o.Address.Phone); ok {
		findings = append(findings, f)
	}
	if f, ok := a.checkCODValue(o); ok {
		findings = append(findings, f)
	}
	if f, ok := checkPriorFailedDelivery(o.Shipping.TrackingHistory); ok {
		findings = append(findings, f)
	}
	if f, ok := checkServiceability(o.Address); ok {
		findings = append(findings, f)
	}

	report := Report{Risks: findings, RiskCount: len(findings), HasRisks: len(findings) > 0}
	for _, f := range findings {
		if f.Severity == SeverityHigh {
			report.HighSeverityCount++
		}
	}
	return report
}

func checkAddress(addr model.Address) (Finding, bool) {
	finding := Finding{
		Type:     FindingIncompleteAddress,
		Severity: SeverityHigh,
	}

	required := []string{
		addr.FullName, addr.Phone, addr.AddressLine1,
		addr.City, addr.State, addr.PostalCode,
	}
	for _, field := range required {
		if strings.TrimSpace(field) == "" {
			finding.Message = "required address field is missing"
			return finding, true
		}
	}

	if len(strings.TrimSpace(addr.AddressLine1)) < 5 {
		finding.Message = "address line is too short"
		return finding, true
	}

	text := strings.ToLower(addr.AddressLine1 + " " + addr.AddressLine2 + " " + addr.City)
	for _, token := range placeholderTokens {
		if strings.Contains(text, token) {
			finding.Message = "address contains placeholder text: " + token
			return finding, true
		}
	}

	return Finding{}, false
}

func checkPincode(pincode string) (Finding, bool) {
	if pincodeRe.MatchString(strings.TrimSpace(pincode)) {
		return Finding{}, false
	}
	return Finding{
		Type:     FindingInvalidPincode,
		Severity: SeverityHigh,
		Message:  "postal code must be 6 digits and not start with 0",
	}, true
}

func checkPhone(phone string) (Finding, bool) {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, phone)
	stripped = strings.TrimPrefix(stripped, "+91")

	if phoneRe.MatchString(stripped) {
		return Finding{}, false
	}
	return Finding{
		Type:     FindingInvalidPhone,
		Severity: SeverityMedium,
		Message:  "phone must be 10 digits starting with 6-9",
	}, true
}

func (a Analyzer) checkCODValue(o *model.Order) (Finding, bool) {
	if o.Payment.Method != model.PaymentMethodCOD || o.Total <= a.codThresholdPaise {
		return Finding{}, false
	}
	return Finding{
		Type:     FindingHighCODValue,
		Severity: SeverityMedium,
		Message:  "cash-on-delivery total exceeds the risk threshold",
	}, true
}

func checkPriorFailedDelivery(history []model.TrackingEvent) (Finding, bool) {
	for _, ev := range history {
		text := strings.ToLower(ev.Status)
		for _, marker := range failedDeliveryMarkers {
			if strings.Contains(text, marker) {
				return Finding{
					Type:     FindingPriorFailedDelivery,
					Severity: SeverityHigh,
					Message:  "tracking history shows a failed delivery attempt: " + ev.Status,
				}, true
			}
		}
	}
	return Finding{}, false
}

func checkServiceability(addr model.Address) (Finding, bool) {
	if addr.VerifiedDelivery == nil || *addr.VerifiedDelivery {
		return Finding{}, false
	}
	return Finding{
		Type:     FindingUnserviceableArea,
		Severity: SeverityMedium,
		Message:  "delivery to this area could not be verified",
	}, true
}
