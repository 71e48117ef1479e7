// Package core defines the shared language of the LeapExplore system.
//
// This package contains:
//   - Query entities (DataQuery, DataSourceRef, Frame)
//   - Time range types (RawTimeRange, TimeRange, AbsoluteRange)
//   - Rich history entities and search filters
//   - Service interfaces (Adapter)
//   - Configuration types (DatasourceConfig)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
