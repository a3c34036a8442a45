package arbiter

import "github.com/xraph/arbiter/id"

// ID is the primary identifier type for all Arbiter entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// PolicyID identifies a stored policy.
type PolicyID = id.PolicyID
