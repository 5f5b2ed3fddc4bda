package llm

import "fmt"

// Canned openers sent as the first user message of every call. The o1-mini
// family rejects system-role messages, so every message goes out as user.
const (
	chatPreamble       = "You are a helpful assistant, who helps the user with their query."
	structuredPreamble = "You are a helpful assistant that processes images to generate structured outputs."
)

// VisualTypes is the closed set of labels the image analysis step may emit.
var VisualTypes = []string{
	"graph", "chart", "diagram", "flowchart", "map", "photo",
	"illustration", "screenshot", "logo", "icon", "infographic", "drawing",
}

const imageDescriptionPrompt = `You are given an image of one full PDF page. Detect every meaningful visual element embedded in the page: graphs, charts, diagrams, flowcharts, maps, photos, illustrations, screenshots, logos, icons, infographics and drawings. Ignore page borders, watermarks, bullets and other decoration.

For each detected visual, produce:
1. visual_description: a thorough, self-contained description of what the visual shows. For graphs and charts include axes, units, series names, visible data points and trends. For photos and illustrations describe the subject and any visible text.
2. contextual_relevance: how this visual relates to the page around it and what role it plays in the document.
3. analysis: the insight a careful reader should take away from this visual, including notable numbers, comparisons or anomalies.
4. visual_type: exactly one of graph, chart, diagram, flowchart, map, photo, illustration, screenshot, logo, icon, infographic, drawing.

If the page contains no meaningful visuals, return an empty list. Do not invent visuals and do not describe tables here.`

const tableDescriptionPrompt = `You are given an image of one full PDF page. Detect every data table on the page. A table is a grid of values with rows and columns; do not treat page layout columns or figure legends as tables.

For each detected table, produce:
1. markdown: the complete table reproduced as GitHub-flavored Markdown, preserving headers, row order and every cell value exactly as printed. Use empty cells where the original is blank.
2. contextual_relevance: how the table relates to the surrounding page and what it is there to support.
3. analysis: the key observations a reader should draw from the table, including totals, outliers and trends across rows or columns.

If the page contains no tables, return an empty list. Never summarize away rows; reproduce the full table.`

const processTextPrompt = `Below is the raw text extracted programmatically from one PDF page. It may contain broken lines, merged columns, stray artifacts, footers and malformed tables. Using the attached page image as the ground truth where available, rewrite the content as clean, well-structured Markdown:

- Restore natural paragraphs and heading levels.
- Rebuild any tables as Markdown tables.
- Keep every piece of real content; do not add commentary or summaries.
- Drop page furniture such as repeated headers, footers and page numbers.

Return only the cleaned Markdown.

## Extracted Text:

%s`

const condenseTextPrompt = `Condense the following document into a compact version that preserves every load-bearing fact: named entities, figures, dates, definitions, conclusions and the logical flow between sections. Write continuous prose in the document's own language, dropping repetition, boilerplate and page artifacts. Target roughly one tenth of the original length.

Return only the condensed text.

## Document:

%s`

const tableOfContentsPrompt = `Read the following document and produce a detailed table of contents in Markdown. Use nested bullet lists with the section name and, when identifiable, the page number in the form "Section Name (page N)". Capture every chapter, section and notable subsection in reading order. Wrap the result in a single markdown code block.

## Document:

%s`

const translateTextPrompt = `Translate the following text into %s. Preserve the Markdown structure, tables, lists and inline formatting exactly; translate prose, headers and table cells. Do not add notes or explanations.

## Text:

%s`

const searchExpansionPrompt = `A user is searching a document knowledge base with the query below. Generate search expansions that widen recall without drifting off-topic:

1. expanded_terms: alternative phrasings, synonyms, abbreviations and spelling variants of the query terms.
2. related_areas: adjacent topics, broader categories and domain concepts a relevant document is likely to discuss.

Keep each entry short (one to five words) and concrete.

## Query:

%s`

func BuildProcessTextPrompt(text string) string {
	return fmt.Sprintf(processTextPrompt, text)
}

func BuildCondensePrompt(document string) string {
	return fmt.Sprintf(condenseTextPrompt, document)
}

func BuildTOCPrompt(document string) string {
	return fmt.Sprintf(tableOfContentsPrompt, document)
}

func BuildTranslatePrompt(language, text string) string {
	return fmt.Sprintf(translateTextPrompt, language, text)
}

func BuildSearchExpansionPrompt(query string) string {
	return fmt.Sprintf(searchExpansionPrompt, query)
}

// BuildCustomStepPrompt attaches the working text to a user-declared step
// prompt.
func BuildCustomStepPrompt(stepPrompt, text string) string {
	return fmt.Sprintf("%s\n\n## Input Text:\n\n%s", stepPrompt, text)
}

// ImageDescriptionPrompt returns the detection prompt for embedded visuals.
func ImageDescriptionPrompt() string { return imageDescriptionPrompt }

// TableDescriptionPrompt returns the detection prompt for embedded tables.
func TableDescriptionPrompt() string { return tableDescriptionPrompt }
