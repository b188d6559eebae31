// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the tool server to function:
//
//   - TextExtractor: Pulls text, metadata and search hits out of a PDF.
//   - HandleStore: Persists the handle-to-path registry across restarts.
//   - IndexStore: Persists a built DocumentIndex (chunks + vectors) to disk.
//   - EmbeddingService: Generates vector embeddings for chunk text.
//   - VectorIndex: Stores and searches one document's chunk vectors.
//   - CompletionService: Wraps the remote generative-model endpoint.
//
// # Optional Interfaces
//
// None of the above are optional. The service layer calls each of them
// without a nil check, so every one must be provided.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
