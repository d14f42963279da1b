package prescription

import (
	"strings"

	"github.com/jcsn13/ocr-prescription/pkg/models"
)

const classifyIntro = `Analise a receita médica fornecida e classifique-a em uma das categorias abaixo:
[MANUSCRITA] - a maior parte do conteúdo principal (medicamentos, dosagens e instruções) foi escrita à mão
[DIGITADA] - a maior parte do conteúdo principal (medicamentos, dosagens e instruções) foi digitada ou impressa

Exemplos [MANUSCRITA]:`

const classifyTypedExamples = "Exemplos [DIGITADA]:"

const classifyInstructions = `Importante:
- Considere apenas o corpo principal da receita
- Ignore a assinatura do médico
- Ignore carimbos e elementos do cabeçalho
- Foque em como os medicamentos e as instruções foram registrados

Responda apenas com uma das classificações: MANUSCRITA ou DIGITADA
Receita Médica:`

// prescriptionRules defines each prescription-level code for the model.
var prescriptionRules = map[string]string{
	models.MissingRegionalCouncil:                "O número do conselho regional não aparece na receita.",
	models.DivergentRegionalCouncil:              "O conselho regional da receita é diferente do informado na transação.",
	models.IllegiblePrescription:                 "A receita não pode ser lida.",
	models.DivergentDate:                         "A data da receita é diferente da data informada na transação.",
	models.InvalidDocumentAsPrescription:         "O documento enviado não é um receituário válido.",
	models.ScratchedPrescription:                 "A receita contém rasuras.",
	models.PrescriptionWithoutDate:               "A receita não tem data.",
	models.PrescriptionWithoutName:               "A receita não tem o nome do paciente.",
	models.DifferentBeneficiaryNameThirdParty:    "O nome na receita é diferente do nome do beneficiário.",
	models.DifferentBeneficiaryNameFamilyGroup:   "O nome na receita é de outra pessoa do grupo familiar do beneficiário.",
	models.ExpiredPrescriptionDate:               "A receita está vencida.",
	models.PrescriptionNotRelatedToAuthorization: "A receita não tem relação com a autorização médica.",
	models.CutPrescription:                       "A receita está cortada.",
}

// itemRules defines each item-level code for the model.
var itemRules = map[string]string{
	models.ProductNotInPrescription:            "O produto vendido não consta na receita.",
	models.DosageNotMatchingPrescription:       "A dosagem do medicamento não corresponde à prescrita.",
	models.PurchaseExceedsRecommendedDailyDose: "A quantidade comprada ultrapassa a recomendada na receita.",
}

const validationRole = "Você é uma IA especializada em validar transações de venda a partir de receitas médicas. " +
	"Seu objetivo é verificar se as informações da transação estão de acordo com os dados da receita associada."

const validationGuidance = `Importante:
- Avalie cada regra individualmente.
- Os campos do JSON de venda não podem divergir das informações da receita.
  - Exemplo: se o JSON de venda traz "name_in_prescription": "João Paulo" e a receita mostra "Paula Maria", há divergência PRESCRIPTION_WITH_DIFFERENT_BENEFICIARY_NAME_THIRD_PARTY.
  - Exemplo: se o JSON de venda traz "prescription_date": "2024-10-25" e a receita é datada de 14 de dezembro de 2023, há divergência EXPIRED_PRESCRIPTION_DATE.
- Posicione cada regra no escopo correto:
  - Regras da receita vão em reasonsPrescriptionDiscrepancy no nível da receita.
  - Regras dos medicamentos vão em reasonsPrescriptionDiscrepancy dentro de cada item.`

const validationResponseShape = `{
  "name_in_prescription": "nome do paciente",
  "doctor_name": "nome do médico",
  "prescription_date": "2024-01-01",
  "crm_number": "31024",
  "crm_state": "SP",
  "status": "APPROVED" ou "REPROVED",
  "reasonsPrescriptionDiscrepancy": ["CODIGO_1", "CODIGO_2"] ou [],
  "items": [
    {
      "product": {"code": "código do produto", "name": "nome do produto", "ean": "ean do produto"},
      "status": "APPROVED" ou "REPROVED",
      "reasonsPrescriptionDiscrepancy": ["CODIGO_1"] ou []
    }
  ]
}`

const validationClosing = `Se houver discrepâncias, liste-as em reasonsPrescriptionDiscrepancy. O status geral só pode ser APPROVED se todos os itens forem aprovados.
Responda APENAS com o JSON, sem explicações adicionais.`

// buildValidationPrompt assembles the validation prompt. The OCR block is
// omitted entirely when ocrText is nil.
func buildValidationPrompt(ocrText *string, transaction []byte) string {
	var prompt strings.Builder

	prompt.WriteString(validationRole)
	prompt.WriteString("\n\n")

	if ocrText != nil {
		prompt.WriteString("Receita (texto OCR):\n")
		prompt.WriteString(*ocrText)
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("Dados da transação:\n")
	prompt.Write(transaction)
	prompt.WriteString("\n\n")

	prompt.WriteString("Regras de Validação da Receita:\n")
	writeRules(&prompt, models.PrescriptionDiscrepancyCodes, prescriptionRules)
	prompt.WriteString("\nRegras de Validação dos Medicamentos Receitados (campo \"items\" do JSON de venda):\n")
	writeRules(&prompt, models.ItemDiscrepancyCodes, itemRules)

	prompt.WriteString("\n")
	prompt.WriteString(validationGuidance)
	prompt.WriteString("\n\nForneça a resposta no seguinte formato JSON:\n")
	prompt.WriteString(validationResponseShape)
	prompt.WriteString("\n\n")
	prompt.WriteString(validationClosing)

	return prompt.String()
}

func writeRules(b *strings.Builder, codes []string, definitions map[string]string) {
	for _, code := range codes {
		b.WriteString("- ")
		b.WriteString(code)
		b.WriteString(": ")
		b.WriteString(definitions[code])
		b.WriteString("\n")
	}
}
