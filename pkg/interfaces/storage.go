package interfaces

import (
	"github.com/goliatone/go-contentpack/pkg/storage"
)

// StorageProvider aliases storage.Provider for callers importing the
// interfaces package.
type StorageProvider = storage.Provider

// StorageCapabilityReporter mirrors storage.CapabilityReporter.
type StorageCapabilityReporter = storage.CapabilityReporter

// Rows aliases storage.Rows.
type Rows = storage.Rows

// Result aliases storage.Result.
type Result = storage.Result

// Transaction aliases storage.Transaction.
type Transaction = storage.Transaction
