package domain

// StorageNamespace is the fixed key/value namespace backing the storage service.
const StorageNamespace = "ServiceMocker"

// WildcardOrigin addresses any listener in the same execution context.
const WildcardOrigin = "*"

// DefaultScope is used when a registration does not name one.
const DefaultScope = "/"
