// Package report renders scrape results for people and tools.
//
// Three formats are provided:
//   - SimpleWriter prints each profile as "key: value" lines, or a single
//     ERROR line for a failed target.
//   - JSONWriter emits one JSON object per result, suitable for jq.
//   - MarkdownWriter renders a summary document for sharing.
//
// Writers receive results one at a time through Write as targets finish,
// and a final WriteSummary once the batch is complete. MultiWriter fans
// out to several writers.
package report
