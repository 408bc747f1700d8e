// Package locator discovers where the control plane lives. The base URL is
// published as the first line of a plain-text document and cached in the
// server location file that every other component reads.
package locator
