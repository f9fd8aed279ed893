// Package detect decides which catalogue rules apply to a repository and to
// which files.
//
// A [Detector] computes the detected languages, categories and applicable
// rules lazily and caches each result for its own lifetime; nothing is cached
// across Detector instances. A [Mapper] turns the applicable simple rules
// into rule→files and file→rules mappings and flat evaluation units.
package detect
