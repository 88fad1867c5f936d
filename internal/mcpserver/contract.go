package mcpserver

// ChecklistFormatContract describes the JSON checklist document format that
// LLM consumers should follow when creating or updating files.
const ChecklistFormatContract = `# Stepsheet Checklist Format Contract

Every checklist file stored in Stepsheet MUST be a single JSON object.

## Structure

` + "```" + `json
{
  "title": "Login smoke test",
  "requiredFields": ["action", "expected"],
  "customFields": ["note"],
  "steps": [
    { "action": "open /login", "expected": "form is shown", "pass": false }
  ]
}
` + "```" + `

## Rules

1. **The root is an object.** Arrays, strings and numbers are rejected.
2. **` + "`" + `title` + "`" + `** is an optional string. It is the display name in file lists.
3. **` + "`" + `requiredFields` + "`" + `** and **` + "`" + `customFields` + "`" + `** are optional arrays of strings.
   Required fields missing or empty on a step are reported per step.
4. **` + "`" + `steps` + "`" + `** is an array of objects. Each step may carry any string keys.
5. **` + "`" + `pass` + "`" + `** on a step is a boolean (or null). Use ` + "`" + `toggle_pass` + "`" + ` to flip it;
   the rest of the document keeps its exact formatting.
6. **Key order is preserved.** Tools edit the text in place and never re-serialize
   the document unless explicitly formatted.
7. **File names** end with ` + "`" + `.json` + "`" + ` and are unique within their folder.
8. **Encoding** is UTF-8. Offsets reported by tools are byte offsets.

## Errors

- ` + "`" + `locate_json_error` + "`" + ` reports the message, the byte offset, the line and column of a
  syntax error, and a short excerpt around it.
- Trailing commas are reported at the comma itself.
- A document that parses but breaks the rules above is reported as a runtime error.

## Example

` + "```" + `json
{
  "title": "Checkout",
  "requiredFields": ["action", "expected"],
  "steps": [
    { "action": "add item to cart", "expected": "cart shows 1", "pass": true },
    { "action": "pay with test card", "expected": "receipt page", "pass": false, "note": "staging only" }
  ]
}
` + "```" + `
`
