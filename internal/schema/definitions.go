package schema

import "github.com/jcsn13/ocr-prescription/pkg/models"

// GenerationConfig constrains one completion request.
type GenerationConfig struct {
	MaxOutputTokens  int32
	Temperature      float32
	TopP             float32
	ResponseMIMEType string
	ResponseSchema   *Schema
}

// HarmCategory names a content-safety category of the generative API.
type HarmCategory string

const (
	HarmCategoryHateSpeech       HarmCategory = "HATE_SPEECH"
	HarmCategoryDangerousContent HarmCategory = "DANGEROUS_CONTENT"
	HarmCategorySexuallyExplicit HarmCategory = "SEXUALLY_EXPLICIT"
	HarmCategoryHarassment       HarmCategory = "HARASSMENT"
)

// HarmThreshold is the blocking threshold applied to a category.
type HarmThreshold string

const (
	HarmThresholdOff          HarmThreshold = "OFF"
	HarmThresholdBlockHigh    HarmThreshold = "BLOCK_ONLY_HIGH"
	HarmThresholdBlockMedium  HarmThreshold = "BLOCK_MEDIUM_AND_ABOVE"
	HarmThresholdBlockLowPlus HarmThreshold = "BLOCK_LOW_AND_ABOVE"
)

// SafetySetting pairs a category with its threshold.
type SafetySetting struct {
	Category  HarmCategory
	Threshold HarmThreshold
}

const (
	maxOutputTokens = 8192
	temperature     = 0.3
	topP            = 0.95
	mimeJSON        = "application/json"
)

// LabelField is the single property of the classification response.
const LabelField = "response"

// ClassificationSchema constrains the classifier to a single string field.
var ClassificationSchema = &Schema{
	Type: TypeObject,
	Properties: map[string]*Schema{
		LabelField: {Type: TypeString},
	},
}

var statusSchema = &Schema{
	Type: TypeString,
	Enum: []string{string(models.StatusApproved), string(models.StatusReproved)},
}

// ValidationSchema constrains the verdict returned by the validation stage.
var ValidationSchema = &Schema{
	Type: TypeObject,
	Required: []string{
		"name_in_prescription", "doctor_name", "prescription_date", "crm_number", "crm_state",
		"status", "reasonsPrescriptionDiscrepancy", "items",
	},
	Properties: map[string]*Schema{
		"name_in_prescription": {Type: TypeString},
		"doctor_name":          {Type: TypeString},
		"prescription_date":    {Type: TypeString},
		"crm_number":           {Type: TypeString},
		"crm_state":            {Type: TypeString},
		"status":               statusSchema,
		"reasonsPrescriptionDiscrepancy": {
			Type:  TypeArray,
			Items: &Schema{Type: TypeString, Enum: models.PrescriptionDiscrepancyCodes},
		},
		"items": {
			Type: TypeArray,
			Items: &Schema{
				Type:     TypeObject,
				Required: []string{"product", "status", "reasonsPrescriptionDiscrepancy"},
				Properties: map[string]*Schema{
					"product": {
						Type:     TypeObject,
						Required: []string{"code", "name", "ean"},
						Properties: map[string]*Schema{
							"code": {Type: TypeString},
							"name": {Type: TypeString},
							"ean":  {Type: TypeString},
						},
					},
					"status": statusSchema,
					"reasonsPrescriptionDiscrepancy": {
						Type:  TypeArray,
						Items: &Schema{Type: TypeString, Enum: models.ItemDiscrepancyCodes},
					},
				},
			},
		},
	},
}

// ClassificationConfig is the generation config of the classification stage.
func ClassificationConfig() GenerationConfig {
	return GenerationConfig{
		MaxOutputTokens:  maxOutputTokens,
		Temperature:      temperature,
		TopP:             topP,
		ResponseMIMEType: mimeJSON,
		ResponseSchema:   ClassificationSchema,
	}
}

// ValidationConfig is the generation config of the validation stage.
func ValidationConfig() GenerationConfig {
	return GenerationConfig{
		MaxOutputTokens:  maxOutputTokens,
		Temperature:      temperature,
		TopP:             topP,
		ResponseMIMEType: mimeJSON,
		ResponseSchema:   ValidationSchema,
	}
}

// SafetySettings disables blocking on all four categories; prescriptions
// routinely mention drugs and dosages that trip the default filters.
func SafetySettings() []SafetySetting {
	return []SafetySetting{
		{Category: HarmCategoryHateSpeech, Threshold: HarmThresholdOff},
		{Category: HarmCategoryDangerousContent, Threshold: HarmThresholdOff},
		{Category: HarmCategorySexuallyExplicit, Threshold: HarmThresholdOff},
		{Category: HarmCategoryHarassment, Threshold: HarmThresholdOff},
	}
}
