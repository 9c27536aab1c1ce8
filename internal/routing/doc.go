// Package routing classifies requests into access tiers.
//
// Endpoints are declared once at startup as an explicit list of
// (pattern, methods, tier, permissions). NewClassifier compiles them into
// an immutable table that answers Classify(method, path) for every request:
//   - Public rules win over any overlapping protected rule
//   - AdminOnly rules win over RequiresAuth rules
//   - among RequiresAuth rules the most specific pattern wins
//   - unannotated paths fall back to the tier of the base they live under
//
// Patterns are globs over path segments: "*" matches exactly one segment and
// a trailing "**" matches the remainder of the path, including nothing.
package routing
