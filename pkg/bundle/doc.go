// Package bundle serves static processor configurations by name.
//
// A catalog is a YAML mapping of config name to processor fields, using the
// same keys as types.Processor. The binary carries a default catalog; Load
// overlays a file on top of it. Static bundles are validated strictly: an
// entry with any invalid field is dropped whole, unlike interactive
// registrations which drop only the offending field.
package bundle
