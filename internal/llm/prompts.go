package llm

import (
	"fmt"
	"strings"
)

// Message is a provider-neutral chat message.
type Message struct {
	Role    string
	Content string
}

const maxContentChars = 10000

const analysisSystemPrompt = `You are a data quality and metadata extraction assistant. You analyze document content and return ONLY a valid JSON object, no additional text.`

const analysisSchema = `{
  "document_type": "type of document (e.g., report, presentation, contract, invoice, email)",
  "summary": "2-3 sentences describing the main content and purpose",
  "context": "why this document exists and what it is used for",
  "metadata": {
    "topics": ["main topics, themes, or subjects covered"],
    "key_terms": ["important keywords or technical terms"],
    "people": ["person names mentioned, with roles if available"],
    "organizations": ["companies, organizations, institutions mentioned"],
    "locations": ["locations, cities, countries, addresses mentioned"],
    "dates": ["important dates, time periods, or deadlines mentioned"]
  },
  "dimensions": {
    "<dimension_name>": {"score": 0-100, "evidence": "one sentence justifying the score"}
  }
}`

// BuildAnalysisPrompt constructs the analysis conversation for a document.
func BuildAnalysisPrompt(fileName, content string, dimensions []string) []Message {
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}

	var user strings.Builder
	fmt.Fprintf(&user, "File Name: %s\n\nContent:\n%s\n\n", fileName, content)
	user.WriteString("Extract and return ONLY a valid JSON object with the following structure:\n")
	user.WriteString(analysisSchema)
	user.WriteString("\n\nScore every one of these dimensions, each in \"dimensions\":\n")
	user.WriteString(strings.Join(dimensions, ", "))
	user.WriteString("\n\nIMPORTANT:\n")
	user.WriteString("- Extract ALL entities you can find in the document\n")
	user.WriteString("- If a metadata category has no items, use an empty array []\n")
	user.WriteString("- Provide a score and evidence for every listed dimension\n")
	user.WriteString("- Return ONLY the JSON object, no additional text\n")

	return []Message{
		{Role: "system", Content: analysisSystemPrompt},
		{Role: "user", Content: user.String()},
	}
}

// BuildFixJSONPrompt asks the model to repair invalid JSON output.
func BuildFixJSONPrompt(raw string) []Message {
	return []Message{
		{Role: "system", Content: analysisSystemPrompt},
		{Role: "user", Content: "The following output was supposed to be a single valid JSON object but is malformed. Return the corrected JSON object and nothing else:\n\n" + raw},
	}
}
