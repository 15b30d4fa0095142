// Package service contains the application-specific use cases and business
// logic. It orchestrates interactions between domain objects and repositories
// (defined in internal/store) to fulfill application features.
//
// Each subpackage covers one area of the configuration system:
//
//   - resolution walks profile and channel chains to compute effective values
//   - materialize primes the resolved_config cache for whole scopes
//   - settings handles key, channel, profile, and value writes
//   - export renders resolved scopes as JSON or YAML documents
//   - version captures profile snapshots and rolls assignments back
//
// Services receive repositories and cross-cutting dependencies through
// constructor injection, apply transactional boundaries when a write spans
// multiple repositories, and translate store-level errors into errors the
// API layer can map to HTTP responses. The service layer depends on domain
// entities and repository interfaces, never on specific infrastructure
// implementations.
package service
