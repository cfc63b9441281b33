// Package persona defines the fixed set of deliberation roles and renders
// their system instructions from an external constitution document.
//
// Constitution sources (FileSource, GitHubSource, CachedSource, ChainSource)
// are interchangeable. Registry.DefinitionsFor never fails: when every
// source is unavailable it renders from FallbackConstitution so that a
// deliberation can still run in degraded form.
package persona
