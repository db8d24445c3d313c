package types

// JSONMap is a free-form key/value payload persisted as jsonb.
type JSONMap map[string]any
