package extract

import "strings"

// SystemInstruction is sent as the system message on every extraction call.
const SystemInstruction = "You are an insurance loss report processor that must always return valid JSON."

// ExtractionPrompt describes the task and the exact shape of the answer.
const ExtractionPrompt = `You are an AI assistant specialized in analyzing insurance loss run reports. Extract and structure the data into JSON format as specified:
{
  "policy_number": "",
  "insured_name": "",
  "losses": [
    {
      "claim_number": "",
      "date_of_loss": "",
      "amount": "",
      "description": ""
    }
  ]
}
Text:
`

// JSONOnlyInstruction closes every prompt.
const JSONOnlyInstruction = "IMPORTANT: Return ONLY valid JSON data. If there's not enough information, return an empty JSON structure."

// BuildPrompt renders the user message for one chunk. The chunk text is
// embedded verbatim.
func BuildPrompt(chunk string) string {
	var sb strings.Builder
	sb.Grow(len(ExtractionPrompt) + len(chunk) + len(JSONOnlyInstruction) + 1)
	sb.WriteString(ExtractionPrompt)
	sb.WriteString(chunk)
	sb.WriteString("\n")
	sb.WriteString(JSONOnlyInstruction)
	return sb.String()
}
