package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Status is the approval state of a prescription or of one of its items.
type Status string

const (
	StatusApproved Status = "APPROVED"
	StatusReproved Status = "REPROVED"
)

// Valid reports whether s is APPROVED or REPROVED.
func (s Status) Valid() bool {
	return s == StatusApproved || s == StatusReproved
}

// Prescription-level discrepancy codes.
const (
	MissingRegionalCouncil                = "MISSING_REGINAL_COUNCIL"
	DivergentRegionalCouncil              = "DIVERGENT_REGINAL_COUNCIL"
	IllegiblePrescription                 = "ILLEGIBLE_PRESCRIPTION"
	DivergentDate                         = "DIVERGENT_DATE"
	InvalidDocumentAsPrescription         = "INVALID_DOCUMENT_AS_PRESCRIPTION"
	ScratchedPrescription                 = "SCRATCHED_PRESCRIPTION"
	PrescriptionWithoutDate               = "PRESCRIPTION_WITHOUT_DATE"
	PrescriptionWithoutName               = "PRESCRIPTION_WITHOUT_NAME"
	DifferentBeneficiaryNameThirdParty    = "PRESCRIPTION_WITH_DIFFERENT_BENEFICIARY_NAME_THIRD_PARTY"
	DifferentBeneficiaryNameFamilyGroup   = "PRESCRIPTION_WITH_DIFFERENT_BENEFICIARY_NAME_FAMILY_GROUP"
	ExpiredPrescriptionDate               = "EXPIRED_PRESCRIPTION_DATE"
	PrescriptionNotRelatedToAuthorization = "PRESCRIPTION_NOT_RELATED_TO_AUTHORIZATION"
	CutPrescription                       = "CUT_PRESCRIPTION"
)

// Item-level discrepancy codes.
const (
	ProductNotInPrescription            = "PRODUCT_NOT_IN_PRESCRIPTION"
	DosageNotMatchingPrescription       = "DOSAGE_NOT_MATCHING_PRESCRIPTION"
	PurchaseExceedsRecommendedDailyDose = "PURCHASE_EXCEEDS_RECOMMENDED_DAILY_DOSE"
)

// PrescriptionDiscrepancyCodes lists the closed set of prescription-level codes
// in the order they are presented to the model.
var PrescriptionDiscrepancyCodes = []string{
	MissingRegionalCouncil,
	DivergentRegionalCouncil,
	IllegiblePrescription,
	DivergentDate,
	InvalidDocumentAsPrescription,
	ScratchedPrescription,
	PrescriptionWithoutDate,
	PrescriptionWithoutName,
	DifferentBeneficiaryNameThirdParty,
	DifferentBeneficiaryNameFamilyGroup,
	ExpiredPrescriptionDate,
	PrescriptionNotRelatedToAuthorization,
	CutPrescription,
}

// ItemDiscrepancyCodes lists the closed set of item-level codes.
var ItemDiscrepancyCodes = []string{
	ProductNotInPrescription,
	DosageNotMatchingPrescription,
	PurchaseExceedsRecommendedDailyDose,
}

// ErrInvalidTransactionJSON is returned when caller-supplied transaction data
// is not a valid JSON object. It is raised before the pipeline runs.
var ErrInvalidTransactionJSON = errors.New("invalid transaction JSON")

// InvalidTransactionMessage is what the presentation layer shows for
// ErrInvalidTransactionJSON.
const InvalidTransactionMessage = "Invalid JSON format. Please check the transaction data."

// TransactionProduct is the product sold in one transaction line.
type TransactionProduct struct {
	Code              string `json:"code"`
	Name              string `json:"name"`
	EAN               string `json:"ean"`
	Dosage            string `json:"dosage,omitempty"`
	UsageInstructions string `json:"usage_instructions,omitempty"`
}

// TransactionItem is one line of the sales transaction.
type TransactionItem struct {
	Product TransactionProduct `json:"product"`
}

// TransactionRecord is the sales transaction a prescription is checked
// against. The pipeline forwards the caller's JSON verbatim; this struct only
// gives callers a typed view of it.
type TransactionRecord struct {
	NameInPrescription string            `json:"name_in_prescription"`
	DoctorName         string            `json:"doctor_name"`
	PrescriptionDate   string            `json:"prescription_date"`
	CRMNumber          string            `json:"crm_number"`
	CRMState           string            `json:"crm_state"`
	Items              []TransactionItem `json:"items"`
}

// ParseTransaction checks that raw is a syntactically valid JSON object and
// returns a compact copy of it. Field types are not checked: the record is
// decoded best-effort so callers can log names and item counts, and fields
// whose JSON type differs from the struct are left empty.
func ParseTransaction(raw []byte) (*TransactionRecord, json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, nil, ErrInvalidTransactionJSON
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidTransactionJSON, err)
	}

	var record TransactionRecord
	_ = json.Unmarshal(trimmed, &record)

	return &record, json.RawMessage(compact.Bytes()), nil
}

// Product identifies a product in the verdict.
type Product struct {
	Code string `json:"code"`
	Name string `json:"name"`
	EAN  string `json:"ean"`
}

// ItemVerdict is the model's judgement on one transaction item.
type ItemVerdict struct {
	Product                        Product  `json:"product"`
	Status                         Status   `json:"status"`
	ReasonsPrescriptionDiscrepancy []string `json:"reasonsPrescriptionDiscrepancy"`
}

// Verdict is the structured validation result returned by the model.
type Verdict struct {
	NameInPrescription             string        `json:"name_in_prescription"`
	DoctorName                     string        `json:"doctor_name"`
	PrescriptionDate               string        `json:"prescription_date"`
	CRMNumber                      string        `json:"crm_number"`
	CRMState                       string        `json:"crm_state"`
	Status                         Status        `json:"status"`
	ReasonsPrescriptionDiscrepancy []string      `json:"reasonsPrescriptionDiscrepancy"`
	Items                          []ItemVerdict `json:"items"`
}

// AllItemsApproved reports whether every item in the verdict is approved.
func (v *Verdict) AllItemsApproved() bool {
	for _, item := range v.Items {
		if item.Status != StatusApproved {
			return false
		}
	}
	return true
}

// EnforceAggregateStatus downgrades the overall status to REPROVED when any
// item is not approved. It returns true when the status was changed.
func (v *Verdict) EnforceAggregateStatus() bool {
	if v.Status == StatusApproved && !v.AllItemsApproved() {
		v.Status = StatusReproved
		return true
	}
	return false
}

// HasDiscrepancy reports whether code appears in the prescription-level set.
func (v *Verdict) HasDiscrepancy(code string) bool {
	for _, c := range v.ReasonsPrescriptionDiscrepancy {
		if c == code {
			return true
		}
	}
	return false
}

// ClassificationError is the classification reported for failed runs.
const ClassificationError = "ERROR"

// ProcessingResult is the envelope returned for every pipeline run. Exactly
// one of ValidationResult and Error is meaningful.
type ProcessingResult struct {
	Classification   string   `json:"classification"`
	ValidationResult *Verdict `json:"validation_result"`
	Error            string   `json:"error,omitempty"`
	ErrorKind        string   `json:"error_kind,omitempty"`
}

// Failed reports whether the run ended in the error state.
func (r ProcessingResult) Failed() bool {
	return r.Error != ""
}

// MarshalJSON renders an absent verdict as an empty object so consumers can
// always index validation_result.
func (r ProcessingResult) MarshalJSON() ([]byte, error) {
	type envelope struct {
		Classification   string          `json:"classification"`
		ValidationResult json.RawMessage `json:"validation_result"`
		Error            string          `json:"error,omitempty"`
		ErrorKind        string          `json:"error_kind,omitempty"`
	}

	verdict := json.RawMessage(`{}`)
	if r.ValidationResult != nil {
		b, err := json.Marshal(r.ValidationResult)
		if err != nil {
			return nil, err
		}
		verdict = b
	}

	return json.Marshal(envelope{
		Classification:   r.Classification,
		ValidationResult: verdict,
		Error:            r.Error,
		ErrorKind:        r.ErrorKind,
	})
}
