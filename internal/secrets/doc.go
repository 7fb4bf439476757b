// Package secrets redacts credentials from file content before it is
// chunked, embedded and persisted.
//
// Detection uses the gitleaks default rule set. Findings keep rule IDs and
// positions but never the secret value.
package secrets
