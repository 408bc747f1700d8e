// Package identity resolves the serial number and board serial number of the
// router. They are extracted once from the factory nvmem partition and kept
// in a two-line file afterwards.
package identity
