package qaworkflow

import (
	"strconv"
	"strings"
)

// citationContract is embedded verbatim in every answer prompt so the LLM
// produces inline citation tokens the renderer can pass through unmodified.
const citationContract = `Cite every factual claim inline using bracket tokens:
- "[정책문서 i]" for the i-th internal policy document listed below (1-based).
- "[웹 j]" for the j-th web source listed below (1-based).
Multiple indices may share one bracket, comma-separated, e.g. "[정책문서 1,2]".
Do not invent sources or renumber the lists. Answer in Korean.`

func formatDocsSection(docs []docRef) string {
	var b strings.Builder
	for i, d := range docs {
		b.WriteString("[정책문서 ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("] (")
		b.WriteString(d.docType)
		b.WriteString(") ")
		b.WriteString(d.content)
		b.WriteString("\n")
	}
	return b.String()
}

func formatWebSection(sources []webRef) string {
	var b strings.Builder
	for i, s := range sources {
		b.WriteString("[웹 ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("] ")
		b.WriteString(s.title)
		b.WriteString(" — ")
		b.WriteString(s.snippet)
		b.WriteString("\n")
	}
	return b.String()
}

// docsOnlyPrompt builds the answer_docs_only prompt.
func docsOnlyPrompt(query string, docs []docRef) string {
	return "Question: " + query + "\n\n" +
		"Internal policy documents:\n" + formatDocsSection(docs) + "\n" +
		citationContract
}

// webOnlyPrompt builds the answer_web_only prompt.
func webOnlyPrompt(query string, sources []webRef) string {
	return "Question: " + query + "\n\n" +
		"Web sources:\n" + formatWebSection(sources) + "\n" +
		citationContract
}

// hybridPrompt builds the answer_hybrid prompt: internal documents are
// listed before web sources, matching the evidence list's ordering rule.
func hybridPrompt(query string, docs []docRef, sources []webRef) string {
	return "Question: " + query + "\n\n" +
		"Internal policy documents:\n" + formatDocsSection(docs) + "\n" +
		"Web sources:\n" + formatWebSection(sources) + "\n" +
		citationContract
}

type docRef struct {
	docType string
	content string
}

type webRef struct {
	title   string
	snippet string
}
