// Package rag provides the retrieval tools the textbook agent calls while
// answering a question.
//
// This package implements:
//   - Query embedding and similarity search over the textbook collection
//   - Mapping of stored payloads into typed content records
//   - Rendering of records into a citation-annotated context block
//
// Retrieval is fail-soft: backend failures are logged and degrade to an
// empty result so the agent can still answer without grounding.
package rag
