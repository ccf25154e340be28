// Package prompts contains the LLM prompt templates for diary
// generation.
//
// Prompt text is Go code rather than config files because it is
// program logic: templates use fmt.Sprintf interpolation, benefit from
// compile-time embedding, and can be validated by tests. User-facing
// configuration lives in pawprint.yaml; this package holds the
// instructions sent to models.
//
// Convention: each event category gets its own file (weather.go,
// holiday.go, ...) with an exported function that accepts the dynamic
// parts and returns the system and user prompt strings. Builders are
// pure functions over eventctx.Data.
package prompts
